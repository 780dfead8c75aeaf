package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/bherila/k1flow/src/config"
	"github.com/bherila/k1flow/src/database"
	"github.com/bherila/k1flow/src/extraction"
	"github.com/bherila/k1flow/src/handlers"
	"github.com/bherila/k1flow/src/logger"
	"github.com/bherila/k1flow/src/services"
)

func proxyHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-Proto") == "https" {
			r.URL.Scheme = "https"
			r.TLS = &tls.ConnectionState{}
		}
		next.ServeHTTP(w, r)
	})
}

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{}
	for _, origin := range config.Cfg.AllowedOrigins {
		allowedOrigins[origin] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("k1flow backend server starting...")

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations(config.Cfg.DatabasePath)

	reportCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)
	importService := services.NewImportService(database.DB, reportCache)

	var extractor *extraction.Extractor
	if ex, err := extraction.NewExtractor(context.Background()); err != nil {
		if errors.Is(err, extraction.ErrNoAPIKey) {
			logger.L.Info("PDF extraction disabled: no API key configured")
		} else {
			logger.L.Error("Failed to initialize PDF extraction", "error", err)
		}
	} else {
		extractor = ex
	}

	accountHandler := handlers.NewAccountHandler()
	importHandler := handlers.NewImportHandler(importService, extractor)
	lineItemHandler := handlers.NewLineItemHandler(importService)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(proxyHeadersMiddleware)
	r.Use(enableCORS)
	r.Use(rateLimitMiddleware)
	r.Use(middleware.Timeout(config.Cfg.RequestTimeout))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "k1flow backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/accounts", accountHandler.HandleListAccounts)
		r.Post("/accounts", accountHandler.HandleCreateAccount)
		r.Get("/accounts/{accountID}", accountHandler.HandleGetAccount)
		r.Delete("/accounts/{accountID}", accountHandler.HandleDeleteAccount)

		r.Post("/accounts/{accountID}/import/preview", importHandler.HandlePreview)
		r.Post("/accounts/{accountID}/import", importHandler.HandleConfirm)
		r.Post("/accounts/{accountID}/import/retry", importHandler.HandleRetry)
		r.Post("/accounts/{accountID}/import/cancel", importHandler.HandleCancel)
		r.Get("/accounts/{accountID}/import/status", importHandler.HandleStatus)
		r.Post("/accounts/{accountID}/extract/pdf", importHandler.HandleExtractPDF)

		r.Get("/accounts/{accountID}/items", lineItemHandler.HandleListItems)
		r.Post("/accounts/{accountID}/items", lineItemHandler.HandleCreateItem)
		r.Patch("/accounts/{accountID}/items/{itemID}", lineItemHandler.HandleUpdateItemField)
		r.Delete("/accounts/{accountID}/items/{itemID}", lineItemHandler.HandleDeleteItem)

		r.Get("/accounts/{accountID}/duplicates", lineItemHandler.HandleGetDuplicates)
		r.Post("/accounts/{accountID}/duplicates/resolve", lineItemHandler.HandleResolveDuplicates)
		r.Post("/items/not-duplicate", lineItemHandler.HandleMarkNotDuplicate)

		r.Get("/items/{itemID}/link-candidates", lineItemHandler.HandleLinkCandidates)
		r.Post("/items/link", lineItemHandler.HandleLink)
		r.Post("/items/unlink", lineItemHandler.HandleUnlink)

		r.Get("/accounts/{accountID}/statement", lineItemHandler.HandleGetStatement)
		r.Post("/accounts/{accountID}/statement", lineItemHandler.HandleSaveStatement)
	})

	srv := &http.Server{
		Addr:    ":" + config.Cfg.Port,
		Handler: r,
	}

	go func() {
		logger.L.Info("Server listening", "port", config.Cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.L.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), config.Cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.L.Error("Graceful shutdown failed", "error", err)
	}
	logger.L.Info("Server stopped")
}
