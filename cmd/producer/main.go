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
	cfg, err := config.LoadProducer()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ring := client.NewRingLog(cfg.LogCapacity)
	logging.Setup(cfg.LogLevel, zerolog.ConsoleWriter{Out: ring, NoColor: true, TimeFormat: "15:04:05"})

	var capturer client.Capturer
	if cfg.SourceDir != "" {
		capturer, err = client.NewDirCapturer(cfg.SourceDir, cfg.CanvasWidth, cfg.CanvasHeight, cfg.Quality)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open image source")
		}
	} else {
		capturer = client.NewPatternCapturer(cfg.CanvasWidth, cfg.CanvasHeight, cfg.Quality)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	producer := client.NewProducer(
		client.NewClient(cfg.ServerURL, cfg.HTTPTimeout),
		capturer,
		cfg.Interval,
		cfg.RoomID,
		log.Logger,
	)
	// The loop outlives the signal context so the last cycle can finish
	if err := producer.Start(context.WithoutCancel(ctx)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start producer")
	}
	log.Info().
		Str("room_id", producer.RoomID()).
		Dur("interval", cfg.Interval).
		Msg("Producer started")

	<-ctx.Done()
	producer.Stop()
	producer.Wait()

	fmt.Fprintf(os.Stderr, "room %s, last %d log lines:\n", producer.RoomID(), len(ring.Lines()))
	for _, line := range ring.Lines() {
		fmt.Fprintln(os.Stderr, line)
	}
}
