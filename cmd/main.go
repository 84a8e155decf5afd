package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"librarycatalog/internal/config"
	"librarycatalog/internal/database"
	"librarycatalog/internal/handlers"
	"librarycatalog/internal/logging"
	"librarycatalog/internal/metrics"
	"librarycatalog/internal/repositories"
	"librarycatalog/internal/services"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	db, err := database.Open(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("failed to connect database")
	}
	if err := database.Migrate(db); err != nil {
		logging.Fatal().Err(err).Msg("failed to migrate schema")
	}
	sqlDB, err := db.DB()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to get generic DB")
	}
	defer sqlDB.Close()

	userRepo := repositories.NewUserRepository(db)
	bookRepo := repositories.NewBookRepository(db)
	checkoutRepo := repositories.NewCheckoutRepository(db)

	libraryService := services.NewLibraryService(db, userRepo, bookRepo, checkoutRepo)
	discoveryService := services.NewDiscoveryService(db, bookRepo, checkoutRepo)

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery(), logging.RequestLogger(), metrics.Middleware(), cors.New(corsConfig(cfg.Server.CORSOrigins)))
	router.GET("/metrics", metrics.Handler())
	handlers.RegisterRoutes(router, libraryService, discoveryService, sqlDB.PingContext)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logging.Info().Str("addr", cfg.Server.Addr).Str("driver", cfg.Database.Driver).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// corsConfig allows any origin for "*" (or an empty list) and otherwise
// exactly the listed ones.
func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", logging.RequestIDHeader)
	c.ExposeHeaders = []string{logging.RequestIDHeader}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	return c
}
