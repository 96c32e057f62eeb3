// ==============================================================================
// PAYMENT SERVICE MAIN - cmd/payment/main.go
// ==============================================================================
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"vubank/internal/accounts"
	"vubank/internal/corebank"
	"vubank/internal/handler"
	"vubank/internal/instruction"
	"vubank/internal/middleware"
	"vubank/internal/orchestrator"
	"vubank/internal/statestore"
	"vubank/pkg/config"
	"vubank/pkg/logger"
	"vubank/pkg/validator"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("payment-service")

	log.Info("Starting Payment Service", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	// Redis-backed state store
	kv, err := statestore.NewRedisKV(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("Failed to connect to Redis", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer kv.Close()

	store := statestore.NewStore(kv, cfg.Payment.RecordTTL, cfg.Payment.LockTTL, cfg.Payment.BalanceTTL, log)

	log.Info("State store connected", nil)

	// Collaborator clients
	settlementClient := corebank.NewClient(cfg.CoreBanking.URL, cfg.CoreBanking.SharedSecret, cfg.CoreBanking.Timeout, log)
	accountsClient := accounts.NewClient(cfg.Accounts.URL, cfg.Accounts.JWTSecret,
		&http.Client{Timeout: cfg.Accounts.Timeout}, log)

	// Orchestrator with its dispatch pool
	service := orchestrator.NewService(store, settlementClient, accountsClient, orchestrator.Options{
		Workers:            cfg.Payment.DispatchWorkers,
		QueueSize:          cfg.Payment.DispatchQueueSize,
		DefaultBalance:     cfg.Payment.DefaultBalance,
		Currency:           cfg.Processing.Currency,
		DefaultAccountType: cfg.Processing.DefaultAccountType,
		SettlementTimeout:  cfg.CoreBanking.Timeout + 30*time.Second,
	}, log)
	service.Start()
	defer service.Stop()

	parser := instruction.NewParser(cfg.Validation.MaxPayloadBytes, cfg.Validation.MaxCommentsLength, validator.New(), log)

	paymentHandler := handler.NewPaymentHandler(service, parser, store, cfg.Payment.APIClient, log)

	// Setup router
	r := mux.NewRouter()

	// Middleware
	r.Use(middleware.CORS)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)

	rateLimiter := middleware.NewRateLimiter(kv.Client(), cfg.RateLimit.Limit, cfg.RateLimit.Window)

	// Routes
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/ready", readyCheck(kv)).Methods("GET")

	r.Handle("/payments/transfer",
		rateLimiter.Limit(http.HandlerFunc(paymentHandler.Transfer))).Methods("POST")
	r.HandleFunc("/payments/status/{txnRef}", paymentHandler.Status).Methods("GET")

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Payment service started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down payment service...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Payment service forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Payment service stopped gracefully", nil)
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"payment"}`))
}

func readyCheck(kv *statestore.RedisKV) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := kv.Client().Ping(r.Context()).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not ready","reason":"redis unavailable"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready","service":"payment"}`))
	}
}
