package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apphttp "gitlab.com/cubelite/api/integration-engine/internal/adapters/http"
	"gitlab.com/cubelite/api/integration-engine/internal/adapters/middleware"
	"gitlab.com/cubelite/api/integration-engine/internal/adapters/websocket"
	"gitlab.com/cubelite/api/integration-engine/pkg/safego"
)

// NOTE: The App struct and NewApp function are defined in providers.go for Wire.
// This file should only contain methods for the App struct, like Run().

// Run starts the application, listens for HTTP requests, and handles graceful shutdown.
func (a *App) Run(ctx context.Context) error {
	version := "unknown"
	serviceName := "integration-engine"
	if a.configProvider != nil && a.configProvider.Get() != nil {
		configApp := a.configProvider.Get().App
		if configApp.Version != "" {
			version = configApp.Version
		}
		if configApp.ServiceName != "" {
			serviceName = configApp.ServiceName
		}
	}
	a.logger.Info(ctx, "Starting application", "service_name", serviceName, "version", version)

	a.registerRoutes(ctx)

	if a.eventProcessor != nil {
		if err := a.eventProcessor.Start(ctx); err != nil {
			a.logger.Error(ctx, "Failed to start event processor", "error", err.Error())
			return fmt.Errorf("failed to start event processor: %w", err)
		}
		a.logger.Info(ctx, "Event processor consuming from JetStream")
	} else {
		a.logger.Warn(ctx, "Event processor not initialized. Bus-delivered events will not be evaluated.")
	}

	safego.Execute(ctx, a.logger, "SignalListenerAndGracefulShutdown", func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			a.logger.Info(context.Background(), "Shutdown signal received, initiating graceful shutdown...", "signal", sig.String())
		case <-ctx.Done():
			a.logger.Info(context.Background(), "Application context cancelled, initiating graceful shutdown...")
		}

		shutdownTimeout := 30 * time.Second // Default
		if a.configProvider != nil && a.configProvider.Get() != nil {
			configApp := a.configProvider.Get().App
			if configApp.ShutdownTimeoutSeconds > 0 {
				shutdownTimeout = time.Duration(configApp.ShutdownTimeoutSeconds) * time.Second
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if a.eventProcessor != nil {
			a.logger.Info(context.Background(), "Stopping event processor...")
			a.eventProcessor.Stop()
		}

		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error(context.Background(), "HTTP server graceful shutdown failed", "error", err.Error())
		}
		a.logger.Info(context.Background(), "HTTP server shut down.")
	})

	a.logger.Info(ctx, fmt.Sprintf("HTTP server listening on port %d", a.configProvider.Get().Server.HTTPPort))
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error(ctx, "HTTP server ListenAndServe error", "error", err.Error())
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	a.logger.Info(ctx, "Application shut down gracefully or server closed.")
	return nil
}

// registerRoutes attaches all HTTP endpoints to the mux. Read-only endpoints
// carry only the request ID middleware; mutating endpoints and the live feed
// additionally require the admin API key.
func (a *App) registerRoutes(ctx context.Context) {
	open := func(h http.Handler) http.Handler {
		return middleware.RequestIDMiddleware(h)
	}
	authed := func(h http.Handler) http.Handler {
		return middleware.RequestIDMiddleware(a.apiKeyMiddleware(h))
	}

	healthHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"OK"}`)
	})
	a.httpServeMux.Handle("GET /health", open(healthHandler))

	readyHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		ready := true
		dependenciesStatus := make(map[string]string)

		if a.natsConsumer != nil && a.natsConsumer.NatsConn() != nil {
			if a.natsConsumer.NatsConn().Status() == nats.CONNECTED {
				dependenciesStatus["nats"] = "connected"
			} else {
				dependenciesStatus["nats"] = "disconnected"
				ready = false
				a.logger.Warn(r.Context(), "Readiness check failed: NATS disconnected", "status", a.natsConsumer.NatsConn().Status().String())
			}
		} else {
			dependenciesStatus["nats"] = "not_configured"
			ready = false
			a.logger.Warn(r.Context(), "Readiness check failed: NATS client not configured in App struct")
		}

		if a.redisClient != nil {
			if err := a.redisClient.Ping(r.Context()).Err(); err == nil {
				dependenciesStatus["redis"] = "connected"
			} else {
				dependenciesStatus["redis"] = "disconnected"
				ready = false
				a.logger.Warn(r.Context(), "Readiness check failed: Redis ping failed", "error", err.Error())
			}
		} else {
			dependenciesStatus["redis"] = "not_configured"
			ready = false
			a.logger.Warn(r.Context(), "Readiness check failed: Redis client not configured in App struct")
		}

		response := struct {
			Status       string            `json:"status"`
			Dependencies map[string]string `json:"dependencies"`
		}{
			Dependencies: dependenciesStatus,
		}

		if ready {
			response.Status = "READY"
			w.WriteHeader(http.StatusOK)
		} else {
			response.Status = "NOT_READY"
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			a.logger.Error(r.Context(), "Failed to encode readiness response", "error", err)
		}
	})
	a.httpServeMux.Handle("GET /ready", open(readyHandler))

	a.httpServeMux.Handle("GET /metrics", open(promhttp.Handler()))
	a.logger.Info(ctx, "Prometheus metrics endpoint registered at /metrics")

	// Events
	a.httpServeMux.Handle("POST /events", authed(apphttp.EmitEventHandler(a.eventService, a.logger)))
	a.httpServeMux.Handle("GET /events", open(apphttp.ListEventsHandler(a.eventService, a.logger)))

	// Rules
	a.httpServeMux.Handle("POST /rules", authed(apphttp.CreateRuleHandler(a.ruleEngine, a.logger)))
	a.httpServeMux.Handle("GET /rules", open(apphttp.ListRulesHandler(a.ruleEngine, a.logger)))
	a.httpServeMux.Handle("GET /rules/{id}", open(apphttp.GetRuleHandler(a.ruleEngine, a.logger)))
	a.httpServeMux.Handle("PATCH /rules/{id}", authed(apphttp.UpdateRuleHandler(a.ruleEngine, a.logger)))
	a.httpServeMux.Handle("DELETE /rules/{id}", authed(apphttp.DeleteRuleHandler(a.ruleEngine, a.logger)))

	// Mappings
	a.httpServeMux.Handle("POST /mappings", authed(apphttp.CreateMappingHandler(a.mappingService, a.logger)))
	a.httpServeMux.Handle("GET /mappings", open(apphttp.ListMappingsHandler(a.mappingService, a.logger)))
	a.httpServeMux.Handle("GET /mappings/{id}", open(apphttp.GetMappingHandler(a.mappingService, a.logger)))
	a.httpServeMux.Handle("POST /mappings/{id}/apply", authed(apphttp.ApplyMappingHandler(a.mappingService, a.logger)))

	// Contacts
	a.httpServeMux.Handle("POST /contacts", authed(apphttp.UpsertContactHandler(a.contactService, a.logger)))
	a.httpServeMux.Handle("GET /contacts", open(apphttp.ListContactsHandler(a.contactService, a.logger)))
	a.httpServeMux.Handle("GET /contacts/{id}", open(apphttp.GetContactHandler(a.contactService, a.logger)))
	a.httpServeMux.Handle("POST /contacts/merge", authed(apphttp.MergeContactsHandler(a.contactService, a.logger)))

	// Sync
	a.httpServeMux.Handle("POST /sync", authed(apphttp.TriggerSyncHandler(a.syncService, a.logger)))
	a.httpServeMux.Handle("GET /sync/status", open(apphttp.SyncStatusHandler(a.syncTracker, a.logger)))
	a.httpServeMux.Handle("GET /sync/status/{module}", open(apphttp.GetSyncStatusHandler(a.syncTracker, a.logger)))
	a.httpServeMux.Handle("POST /sync/{module}/ack", authed(apphttp.AckSyncHandler(a.syncTracker, a.logger)))

	// Dashboard
	a.httpServeMux.Handle("GET /dashboard/stats", open(apphttp.DashboardStatsHandler(a.dashboardService, a.logger)))

	// Live event feed
	feedHandler := websocket.EventsFeedHandler(a.broadcaster, a.configProvider, a.logger)
	a.httpServeMux.Handle("GET /ws/events", authed(feedHandler))
	a.logger.Info(ctx, "/ws/events live feed endpoint registered")
}
