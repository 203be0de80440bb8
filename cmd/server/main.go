package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dfryer1193/roomshot/internal/config"
	"github.com/dfryer1193/roomshot/internal/logging"
	"github.com/dfryer1193/roomshot/internal/metrics"
	"github.com/dfryer1193/roomshot/internal/middleware"
	"github.com/dfryer1193/roomshot/internal/rest"
	"github.com/dfryer1193/roomshot/room/application"
	"github.com/dfryer1193/roomshot/room/domain"
	"github.com/dfryer1193/roomshot/room/persistence"
	"github.com/dfryer1193/roomshot/shared/db/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Setup(cfg.LogLevel)

	dbCfg, err := sqlite.NewSQLiteConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load database config")
	}
	database := sqlite.NewSQLiteDB(dbCfg)
	if err := database.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	rooms, err := persistence.NewRoomRepository(database.DB(), cfg.StorageDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize room storage")
	}

	var images domain.ImageStore
	switch cfg.StoreBackend {
	case config.StoreMemory:
		images = persistence.NewMemoryImageStore()
	default:
		images = persistence.NewDiskImageStore()
	}

	reg := metrics.NewRegistry()
	relay := application.NewRelayService(rooms, images, reg)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.LoggingMiddleware(reg))
	r.Use(gin.CustomRecovery(middleware.HandlePanics()))
	rest.NewApi(r, relay, cfg.MaxUploadBytes, reg.Handler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		log.Info().
			Int("port", cfg.Port).
			Str("store", string(cfg.StoreBackend)).
			Str("storage_dir", cfg.StorageDir).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown server")
		return
	}

	log.Info().Msg("Server stopped")
}
