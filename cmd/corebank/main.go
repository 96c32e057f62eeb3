// ==============================================================================
// CORE BANKING SERVICE MAIN - cmd/corebank/main.go
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
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"vubank/internal/accounts"
	"vubank/internal/corebank"
	"vubank/internal/handler"
	"vubank/internal/middleware"
	"vubank/internal/repository/postgres"
	"vubank/pkg/config"
	"vubank/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("corebank-service")

	log.Info("Starting Core Banking Service", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	// Database connection
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	log.Info("Database connected", nil)

	// Initialize repositories and collaborators
	paymentRepo := postgres.NewCorePaymentRepository(db)
	accountsClient := accounts.NewClient(cfg.Accounts.URL, cfg.Accounts.JWTSecret,
		&http.Client{Timeout: cfg.Accounts.Timeout}, log)

	engine := corebank.NewEngine(paymentRepo, accountsClient,
		cfg.Processing.AmountCeiling, cfg.Processing.ClearingDelay, log)

	coreHandler := handler.NewCoreBankHandler(engine, log)
	serviceAuth := middleware.NewServiceAuth(cfg.Auth.SharedSecret, cfg.Auth.JWTSecret)

	// Setup router
	r := mux.NewRouter()

	// Middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)

	// Routes
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/ready", readyCheck(db)).Methods("GET")

	r.Handle("/core/payments",
		serviceAuth.Authenticate(http.HandlerFunc(coreHandler.ProcessPayment))).Methods("POST")
	r.Handle("/core/payments/{txnRef}",
		serviceAuth.Authenticate(http.HandlerFunc(coreHandler.GetPayment))).Methods("GET")

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Core banking service started", map[string]interface{}{
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

	log.Info("Shutting down core banking service...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Core banking service forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Core banking service stopped gracefully", nil)
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"corebank"}`))
}

func readyCheck(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not ready","reason":"database unavailable"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready","service":"corebank"}`))
	}
}
