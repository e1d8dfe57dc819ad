package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"chorepoints/database"
	"chorepoints/middleware"
	"chorepoints/models"
	"chorepoints/notify"
	"chorepoints/routes"
	"chorepoints/scheduler"
)

func main() {
	// Load .env if present (do not overwrite already-set environment variables).
	if envMap, err := godotenv.Read(); err == nil {
		for k, v := range envMap {
			if os.Getenv(k) == "" {
				os.Setenv(k, v)
			}
		}
	}

	// Validate required environment variables
	requiredEnvVars := []string{"DB_HOST", "DB_USER", "DB_PASS", "DB_NAME", "JWT_SECRET"}
	for _, envVar := range requiredEnvVars {
		if os.Getenv(envVar) == "" {
			log.Fatalf("Required environment variable %s is not set", envVar)
		}
	}

	db, err := database.Connect()
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	// Auto-migrate only in development to avoid accidental production schema changes
	if strings.ToLower(os.Getenv("ENV")) == "development" {
		log.Println("Running in development mode - performing auto-migration")
		if err := db.AutoMigrate(
			&models.Family{},
			&models.User{},
			&models.RefreshToken{},
			&models.Task{},
			&models.PointEntry{},
			&models.Negotiation{},
			&models.Reward{},
			&models.Redemption{},
		); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
		log.Println("Auto-migration completed successfully")
	} else {
		log.Println("Running in production mode - skipping auto-migration")
	}

	// With SCHEDULER_MODE=internal the process drives its own scheduler ticks;
	// otherwise an external cron hits the /api/cron endpoints.
	if strings.ToLower(os.Getenv("SCHEDULER_MODE")) == "internal" {
		startInternalScheduler()
	}

	router := routes.InitRouter()

	// Wrap router with global middleware
	// Logging -> Security headers -> Request ID -> Max Body -> Timeout -> Recovery
	handler := middleware.RequestLogMiddleware(
		middleware.SecurityHeadersMiddleware(
			middleware.RequestIDMiddleware(
				middleware.MaxBodyMiddleware(
					middleware.TimeoutMiddleware(
						middleware.RecoveryMiddleware(router),
					),
				),
			),
		),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
}

// startInternalScheduler runs the materialization and penalty passes on cron
// schedules inside the API process. Both passes are idempotent, so running
// them here and via the HTTP cron endpoints at the same time is harmless.
func startInternalScheduler() {
	sch := scheduler.New(database.DB, notify.Default())

	ensureSpec := os.Getenv("CRON_ENSURE_SPEC")
	if ensureSpec == "" {
		ensureSpec = "*/5 * * * *"
	}
	penaltySpec := os.Getenv("CRON_PENALTY_SPEC")
	if penaltySpec == "" {
		penaltySpec = "*/15 * * * *"
	}

	c := cron.New()
	if _, err := c.AddFunc(ensureSpec, func() {
		stats, err := sch.EnsureCurrentInstances(context.Background(), time.Now())
		if err != nil {
			log.Printf("[cron] ensure instances: %v", err)
			return
		}
		if stats.Generated > 0 || stats.Failed > 0 {
			log.Printf("[cron] ensure instances: processed=%d generated=%d failed=%d",
				stats.Processed, stats.Generated, stats.Failed)
		}
	}); err != nil {
		log.Fatalf("invalid CRON_ENSURE_SPEC: %v", err)
	}
	if _, err := c.AddFunc(penaltySpec, func() {
		stats, err := sch.ProcessOverduePenalties(context.Background(), time.Now())
		if err != nil {
			log.Printf("[cron] overdue penalties: %v", err)
			return
		}
		if stats.Penalized > 0 || stats.Failed > 0 {
			log.Printf("[cron] overdue penalties: processed=%d penalized=%d failed=%d",
				stats.Processed, stats.Penalized, stats.Failed)
		}
	}); err != nil {
		log.Fatalf("invalid CRON_PENALTY_SPEC: %v", err)
	}
	c.Start()
	log.Printf("Internal scheduler started (ensure=%q penalties=%q)", ensureSpec, penaltySpec)
}
