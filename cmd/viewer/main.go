package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dfryer1193/roomshot/client"
	"github.com/dfryer1193/roomshot/internal/config"
	"github.com/dfryer1193/roomshot/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadViewer()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ring := client.NewRingLog(cfg.LogCapacity)
	logging.Setup(cfg.LogLevel, zerolog.ConsoleWriter{Out: ring, NoColor: true, TimeFormat: "15:04:05"})

	renderer := client.NewSurfaceRenderer(cfg.CanvasWidth, cfg.CanvasHeight, client.PNGFileSink(cfg.OutputPath))
	viewer := client.NewViewer(
		client.NewClient(cfg.ServerURL, cfg.HTTPTimeout),
		cfg.RoomID,
		renderer,
		client.Backoff{
			Base:          cfg.Interval,
			MaxMultiplier: cfg.MaxBackoffMultiplier,
			ErrorFloor:    cfg.ErrorFloor,
		},
		log.Logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	viewer.Start(context.WithoutCancel(ctx))
	log.Info().
		Str("room_id", cfg.RoomID).
		Str("output", cfg.OutputPath).
		Msg("Viewer started")

	<-ctx.Done()
	viewer.Stop()
	viewer.Wait()

	fmt.Fprintf(os.Stderr, "last %d log lines:\n", len(ring.Lines()))
	for _, line := range ring.Lines() {
		fmt.Fprintln(os.Stderr, line)
	}
}
