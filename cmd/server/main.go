package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nvthao/greenroute/config"
	"github.com/nvthao/greenroute/internal/handler"
	"github.com/nvthao/greenroute/internal/middleware"
	"github.com/nvthao/greenroute/internal/repository"
	"github.com/nvthao/greenroute/internal/service"
	"github.com/nvthao/greenroute/pkg/cache"
	"github.com/nvthao/greenroute/pkg/db"
)

func main() {
	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// ── Connect to PostgreSQL ───────────────────────────
	pgPool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	defer pgPool.Close()
	log.Println("✓ PostgreSQL connected")

	// ── Connect to Redis ────────────────────────────────
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("✓ Redis connected")

	// ── Initialize layers ───────────────────────────────
	scheduleRepo := repository.NewScheduleRepository(pgPool, redisClient)
	requestRepo := repository.NewRequestRepository(pgPool, redisClient)
	customerRepo := repository.NewCustomerRepository(pgPool)

	scorer := service.NewPriorityScorer(service.DefaultScoringConfig())
	optimizer := service.NewRouteOptimizer(cfg.Scheduling.OptMaxIterations)
	scheduleSvc := service.NewScheduleService(
		scheduleRepo, optimizer, cfg.Scheduling.Depot(), cfg.Scheduling.DefaultVisitMinutes)
	backlogSvc := service.NewBacklogService(requestRepo, scorer)

	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)
	requestHandler := handler.NewRequestHandler(requestRepo, customerRepo, backlogSvc)

	// ── Setup router ────────────────────────────────────
	router := mux.NewRouter()

	// Health check endpoint.
	router.HandleFunc("/health", healthHandler(pgPool, redisClient)).Methods(http.MethodGet)

	// API v1 routes.
	api := router.PathPrefix("/api/v1").Subrouter()
	// Exchange request intake and backlog
	api.HandleFunc("/requests", requestHandler.CreateRequest).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id}", requestHandler.GetRequest).Methods(http.MethodGet)
	api.HandleFunc("/requests/{id}/cancel", requestHandler.CancelRequest).Methods(http.MethodPost)
	api.HandleFunc("/backlog", requestHandler.GetBacklog).Methods(http.MethodGet)
	// Daily schedule lifecycle
	api.HandleFunc("/schedules", scheduleHandler.CreateSchedule).Methods(http.MethodPost)
	api.HandleFunc("/schedules/{id}", scheduleHandler.GetSchedule).Methods(http.MethodGet)
	api.HandleFunc("/schedules/{id}", scheduleHandler.DeleteSchedule).Methods(http.MethodDelete)
	api.HandleFunc("/schedules/{id}/stops/order", scheduleHandler.UpdateStopOrder).Methods(http.MethodPut)
	api.HandleFunc("/schedules/{id}/optimize", scheduleHandler.OptimizeRoute).Methods(http.MethodPost)
	api.HandleFunc("/schedules/{id}/approve", scheduleHandler.ApproveSchedule).Methods(http.MethodPost)
	api.HandleFunc("/schedules/{id}/cancel", scheduleHandler.CancelSchedule).Methods(http.MethodPost)
	api.HandleFunc("/schedules/{id}/stops/{stop_id}/start", scheduleHandler.StartStop).Methods(http.MethodPost)
	api.HandleFunc("/schedules/{id}/stops/{stop_id}/complete", scheduleHandler.CompleteStop).Methods(http.MethodPost)

	// Wrap with logging, panic recovery, and CORS.
	wrapped := middleware.CORS(middleware.RequestLogger(middleware.Recoverer(router)))

	// ── Start HTTP server ───────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      wrapped,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in a goroutine so we can listen for shutdown signals.
	go func() {
		log.Printf("🚀 Server listening on %s", cfg.Server.ServerAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// ── Graceful shutdown ───────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("⏳ Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// healthHandler returns an HTTP handler that checks PG and Redis connectivity.
func healthHandler(pgPool *pgxpool.Pool, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Services: make(map[string]string),
		}

		if err := db.HealthCheck(r.Context(), pgPool); err != nil {
			resp.Status = "degraded"
			resp.Services["postgres"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["postgres"] = "healthy"
		}

		if err := cache.HealthCheck(r.Context(), redisClient); err != nil {
			resp.Status = "degraded"
			resp.Services["redis"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["redis"] = "healthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	}
}
