package routes

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"chorepoints/controllers/auth"
	"chorepoints/controllers/kids"
	"chorepoints/middleware"
)

// KidsRoutes registers authentication and the kid-facing surface.
func KidsRoutes(api *mux.Router) {
	// Login/register: 60 per IP per 5 minutes
	loginLimiter := middleware.NewIPRateLimiter(60, 5*time.Minute)
	// Session traffic: 120 reads, 60 writes per user per minute
	userLimiter := middleware.NewUserRateLimiter(120, 60, 60)

	// Register & Login
	api.Handle("/register", loginLimiter.Middleware(http.HandlerFunc(auth.RegisterHandler))).Methods(http.MethodPost)
	api.Handle("/login", loginLimiter.Middleware(http.HandlerFunc(auth.LoginHandler))).Methods(http.MethodPost)
	api.Handle("/refresh", loginLimiter.Middleware(http.HandlerFunc(auth.RefreshHandler))).Methods(http.MethodPost)
	api.Handle("/logout", userLimiter.Middleware(middleware.AuthMiddleware(http.HandlerFunc(auth.LogoutHandler)))).Methods(http.MethodPost)
	api.Handle("/logout-all", userLimiter.Middleware(middleware.AuthMiddleware(http.HandlerFunc(auth.LogoutAllHandler)))).Methods(http.MethodPost)

	// Task board and lifecycle
	api.Handle("/kids/tasks", userLimiter.Middleware(middleware.KidAuthMiddleware(http.HandlerFunc(kids.ListTasksHandler)))).Methods(http.MethodGet)
	api.Handle("/kids/tasks/{id:[0-9]+}/start", userLimiter.Middleware(middleware.KidAuthMiddleware(http.HandlerFunc(kids.StartTaskHandler)))).Methods(http.MethodPost)
	api.Handle("/kids/tasks/{id:[0-9]+}/complete", userLimiter.Middleware(middleware.KidAuthMiddleware(http.HandlerFunc(kids.CompleteTaskHandler)))).Methods(http.MethodPost)
	api.Handle("/kids/tasks/{id:[0-9]+}/pickup", userLimiter.Middleware(middleware.KidAuthMiddleware(http.HandlerFunc(kids.PickupTaskHandler)))).Methods(http.MethodPost)

	// Catch-up on app open
	api.Handle("/kids/catchup", userLimiter.Middleware(middleware.KidAuthMiddleware(http.HandlerFunc(kids.CatchupHandler)))).Methods(http.MethodPost)

	// Points and ledger
	api.Handle("/kids/points", userLimiter.Middleware(middleware.KidAuthMiddleware(http.HandlerFunc(kids.PointsHandler)))).Methods(http.MethodGet)

	// Rewards
	api.Handle("/kids/rewards", userLimiter.Middleware(middleware.KidAuthMiddleware(http.HandlerFunc(kids.ListRewardsHandler)))).Methods(http.MethodGet)
	api.Handle("/kids/redemptions", userLimiter.Middleware(middleware.KidAuthMiddleware(http.HandlerFunc(kids.RedeemRewardHandler)))).Methods(http.MethodPost)
	api.Handle("/kids/redemptions", userLimiter.Middleware(middleware.KidAuthMiddleware(http.HandlerFunc(kids.ListMyRedemptionsHandler)))).Methods(http.MethodGet)

	// Negotiations. Creating offers is kid-only; accept/reject/withdraw accept
	// any family member because renegotiations are decided by a parent.
	api.Handle("/negotiations/split", userLimiter.Middleware(middleware.KidAuthMiddleware(http.HandlerFunc(kids.CreateSplitOfferHandler)))).Methods(http.MethodPost)
	api.Handle("/negotiations/renegotiate", userLimiter.Middleware(middleware.KidAuthMiddleware(http.HandlerFunc(kids.CreateRenegotiationHandler)))).Methods(http.MethodPost)
	api.Handle("/negotiations", userLimiter.Middleware(middleware.AuthMiddleware(http.HandlerFunc(kids.ListNegotiationsHandler)))).Methods(http.MethodGet)
	api.Handle("/negotiations/{code}/accept", userLimiter.Middleware(middleware.AuthMiddleware(http.HandlerFunc(kids.AcceptNegotiationHandler)))).Methods(http.MethodPost)
	api.Handle("/negotiations/{code}/reject", userLimiter.Middleware(middleware.AuthMiddleware(http.HandlerFunc(kids.RejectNegotiationHandler)))).Methods(http.MethodPost)
	api.Handle("/negotiations/{code}/withdraw", userLimiter.Middleware(middleware.AuthMiddleware(http.HandlerFunc(kids.WithdrawNegotiationHandler)))).Methods(http.MethodPost)
}
