package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/rongwang/library-server/internal/api"
	"github.com/rongwang/library-server/internal/config"
	"github.com/rongwang/library-server/internal/notify"
	"github.com/rongwang/library-server/internal/repository"
	"github.com/rongwang/library-server/internal/service"
	"github.com/rongwang/library-server/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := utils.NewLogger(cfg.Log)

	// Create repository
	repo, err := repository.Open(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up store")
	}
	defer repo.Close()

	// Create notifier and service
	notifier, closeNotifier := notify.FromConfig(cfg.Notify, logger)
	svc := service.NewDefaultService(repo, notifier, logger)

	// Load bootstrap data
	if err := service.Bootstrap(context.Background(), svc, cfg.Bootstrap, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to load bootstrap data")
	}

	// Set up Gin router
	gin.SetMode(cfg.Server.Mode)
	handler := api.NewHandler(svc, logger)
	router := api.NewRouter(handler, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
	if err := closeNotifier(ctx); err != nil {
		logger.Error().Err(err).Msg("Pending notifications were dropped")
	}
}
