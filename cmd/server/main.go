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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kramwallet/backend/internal/config"
	"github.com/kramwallet/backend/internal/database"
	"github.com/kramwallet/backend/internal/handlers"
	mW "github.com/kramwallet/backend/internal/middleware"
	"github.com/kramwallet/backend/internal/provider"
	"github.com/kramwallet/backend/internal/services"
)

func main() {
	cfg := config.Load()

	// Single process-wide storage handle; every component receives it.
	db, err := database.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := database.Bootstrap(db); err != nil {
		log.Fatalf("Failed to bootstrap schema: %v", err)
	}

	redisClient := database.InitRedis(cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}
	cache := services.NewWalletCache(redisClient, cfg.Redis.CacheTTL)

	pay := provider.FromConfig(cfg.Provider)
	if !pay.Live() {
		log.Println("[WARN] payment provider not configured, deposits are credited immediately (test mode)")
	}

	ledgerService := services.NewLedgerService(db, cache)
	transferService := services.NewTransferService(ledgerService)
	depositService := services.NewDepositService(db, ledgerService, pay)

	walletHandler := handlers.NewWalletHandler(ledgerService, transferService)
	depositHandler := handlers.NewDepositHandler(depositService)

	// Setup router
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	ok := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	}
	r.Get("/health", ok)
	r.Get("/ping", ok)
	r.Get("/api/ping", ok)

	// Bot-facing endpoints
	r.Post("/users", walletHandler.CreateUser)
	r.Get("/users", walletHandler.ListUsers)
	r.Get("/admins/{userID}", walletHandler.GetAdmin)
	r.Post("/admins/{userID}", walletHandler.MakeAdmin)

	// Mini-app endpoints
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", walletHandler.Me)
		r.Get("/history", walletHandler.History)
		r.Post("/transfer", walletHandler.Transfer)
		r.Post("/deposit/create", depositHandler.CreateDeposit)
		r.Get("/deposit/qr", depositHandler.DepositQR)
	})

	// Background reconciliation loop, only with a live provider.
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	var reconciler *services.Reconciler
	if pay.Live() {
		reconciler = services.NewReconciler(depositService, pay, cfg.Worker.PollInterval, cfg.Worker.BatchSize)
		go reconciler.Run(workerCtx)
		log.Printf("Reconciliation worker started (interval %s)", cfg.Worker.PollInterval)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	// Stop the worker and wait for it to acknowledge before the
	// deferred db.Close releases the storage handle.
	cancelWorker()
	if reconciler != nil {
		<-reconciler.Done()
	}

	log.Println("Server stopped")
}
