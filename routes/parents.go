package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"chorepoints/controllers/parents"
	"chorepoints/middleware"
)

// ParentsRoutes registers the parent-facing surface.
func ParentsRoutes(api *mux.Router) {
	userLimiter := middleware.NewUserRateLimiter(120, 60, 60)

	parent := func(h http.HandlerFunc) http.Handler {
		return userLimiter.Middleware(middleware.ParentAuthMiddleware(h))
	}

	// Family accounts
	api.Handle("/parents/kids", parent(parents.CreateKidHandler)).Methods(http.MethodPost)
	api.Handle("/parents/kids", parent(parents.ListKidsHandler)).Methods(http.MethodGet)

	// Tasks and templates
	api.Handle("/parents/tasks", parent(parents.CreateTaskHandler)).Methods(http.MethodPost)
	api.Handle("/parents/tasks", parent(parents.ListTasksHandler)).Methods(http.MethodGet)
	api.Handle("/parents/tasks/{id:[0-9]+}", parent(parents.UpdateTaskHandler)).Methods(http.MethodPut)
	api.Handle("/parents/tasks/{id:[0-9]+}", parent(parents.DeleteTaskHandler)).Methods(http.MethodDelete)

	// Review
	api.Handle("/parents/tasks/{id:[0-9]+}/approve", parent(parents.ApproveTaskHandler)).Methods(http.MethodPost)
	api.Handle("/parents/tasks/{id:[0-9]+}/reject", parent(parents.RejectTaskHandler)).Methods(http.MethodPost)

	// Rewards and redemptions
	api.Handle("/parents/rewards", parent(parents.CreateRewardHandler)).Methods(http.MethodPost)
	api.Handle("/parents/rewards", parent(parents.ListRewardsHandler)).Methods(http.MethodGet)
	api.Handle("/parents/rewards/{id:[0-9]+}", parent(parents.UpdateRewardHandler)).Methods(http.MethodPut)
	api.Handle("/parents/rewards/{id:[0-9]+}", parent(parents.DeleteRewardHandler)).Methods(http.MethodDelete)
	api.Handle("/parents/redemptions", parent(parents.ListRedemptionsHandler)).Methods(http.MethodGet)
	api.Handle("/parents/redemptions/{id:[0-9]+}/grant", parent(parents.GrantRedemptionHandler)).Methods(http.MethodPost)
	api.Handle("/parents/redemptions/{id:[0-9]+}/deny", parent(parents.DenyRedemptionHandler)).Methods(http.MethodPost)
}
