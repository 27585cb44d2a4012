package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"database/sql"

	"github.com/Pavel2201/habit-stake/internal/config"
	"github.com/Pavel2201/habit-stake/internal/handler"
	"github.com/Pavel2201/habit-stake/internal/middleware"
	"github.com/Pavel2201/habit-stake/internal/repository"
	"github.com/Pavel2201/habit-stake/internal/service"
	"github.com/Pavel2201/habit-stake/internal/utils/email"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	repo := repository.NewRepository(db)
	sender := email.NewSender(cfg, logger)
	svc := service.NewService(repo, logger, cfg, sender)
	h := handler.NewHandler(svc)

	// Schedule the compliance scan; POST /scan triggers the same pass
	c := cron.New()
	if _, err := c.AddFunc(cfg.ScanSchedule, func() {
		summary, err := svc.RunScan(context.Background(), time.Now().UTC())
		if err != nil {
			logger.Errorf("Scheduled scan failed: %v", err)
			return
		}
		logger.Infof("Scheduled scan %s done: %d habits scanned", summary.RunID, summary.HabitsScanned)
	}); err != nil {
		logger.Fatalf("Failed to schedule scan: %v", err)
	}
	c.Start()
	defer c.Stop()

	// Setup router
	r := mux.NewRouter()
	// Public routes
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	// Service-to-service routes: external scheduler and billing provider
	r.HandleFunc("/scan", h.TriggerScan).Methods("POST")
	r.HandleFunc("/payment-obligations/{id}/status", h.AdvancePayment).Methods("PATCH")
	// Protected routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("/habits", h.CreateHabit).Methods("POST")
	authRouter.HandleFunc("/habits/{id}/checkins", h.SubmitCheckIn).Methods("POST")
	authRouter.HandleFunc("/habits/{id}/missed-periods", h.ListMissedPeriods).Methods("GET")
	authRouter.HandleFunc("/missed-periods/{id}/complete", h.ResolveComplete).Methods("POST")
	authRouter.HandleFunc("/missed-periods/{id}/fail", h.ResolveFailed).Methods("POST")

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
