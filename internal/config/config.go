package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// StoreBackend selects where room images live.
type StoreBackend string

const (
	StoreDisk   StoreBackend = "disk"
	StoreMemory StoreBackend = "memory"
)

// Server configures the relay HTTP server.
type Server struct {
	Port            int           `env:"SERVER_PORT" envDefault:"3000"`
	StorageDir      string        `env:"STORAGE_DIR" envDefault:"./screenshots"`
	StoreBackend    StoreBackend  `env:"STORE_BACKEND" envDefault:"disk"`
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Producer configures the capture-and-push client.
type Producer struct {
	Client
	RoomID       string        `env:"ROOM_ID"`
	Interval     time.Duration `env:"SCR_INTERVAL" envDefault:"1s"`
	Quality      int           `env:"SCR_QUALITY" envDefault:"80"`
	SourceDir    string        `env:"SOURCE_DIR"`
	CanvasWidth  int           `env:"CANVAS_WIDTH" envDefault:"640"`
	CanvasHeight int           `env:"CANVAS_HEIGHT" envDefault:"480"`
}

// Viewer configures the polling client.
type Viewer struct {
	Client
	RoomID               string        `env:"ROOM_ID,required,notEmpty"`
	Interval             time.Duration `env:"INTERVAL" envDefault:"1s"`
	MaxBackoffMultiplier int           `env:"MAX_BACKOFF_MULTIPLIER" envDefault:"15"`
	ErrorFloor           time.Duration `env:"ERROR_FLOOR" envDefault:"1s"`
	CanvasWidth          int           `env:"CANVAS_WIDTH" envDefault:"640"`
	CanvasHeight         int           `env:"CANVAS_HEIGHT" envDefault:"480"`
	OutputPath           string        `env:"OUTPUT_PATH" envDefault:"./frame.png"`
}

// Client holds the settings shared by both client binaries.
type Client struct {
	ServerURL   string        `env:"SERVER_URL" envDefault:"http://localhost:3000"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
	LogCapacity int           `env:"LOG_CAPACITY" envDefault:"10"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadServer loads .env (if present) and parses the server configuration.
func LoadServer() (Server, error) {
	var cfg Server
	if err := load(&cfg); err != nil {
		return Server{}, err
	}
	if cfg.StoreBackend != StoreDisk && cfg.StoreBackend != StoreMemory {
		return Server{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	if cfg.MaxUploadBytes <= 0 {
		return Server{}, fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return cfg, nil
}

// LoadProducer loads .env (if present) and parses the producer configuration.
func LoadProducer() (Producer, error) {
	var cfg Producer
	if err := load(&cfg); err != nil {
		return Producer{}, err
	}
	if cfg.Quality < 1 || cfg.Quality > 100 {
		return Producer{}, fmt.Errorf("SCR_QUALITY must be within 1..100, got %d", cfg.Quality)
	}
	if cfg.Interval <= 0 {
		return Producer{}, fmt.Errorf("SCR_INTERVAL must be positive")
	}
	return cfg, nil
}

// LoadViewer loads .env (if present) and parses the viewer configuration.
func LoadViewer() (Viewer, error) {
	var cfg Viewer
	if err := load(&cfg); err != nil {
		return Viewer{}, err
	}
	if cfg.Interval <= 0 {
		return Viewer{}, fmt.Errorf("INTERVAL must be positive")
	}
	if cfg.MaxBackoffMultiplier < 1 {
		return Viewer{}, fmt.Errorf("MAX_BACKOFF_MULTIPLIER must be at least 1")
	}
	return cfg, nil
}

func load(cfg any) error {
	// Load .env if available; ignore error if file does not exist
	_ = godotenv.Load()

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
