// Package config loads the environment-variable configuration shared by the
// three engine binaries, mirroring the merge-then-validate shape of the
// teacher's internal/ops loader but sourcing from os.Getenv instead of a
// JSON file per the broker/exchange credential surface.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"marketpipeline/internal/errors"
)

// MinFillReorderWindow is the smallest reorder window an operator may
// configure for the Lifecycle Engine's fill buffer without an explicit
// override; smaller windows risk attributing a later fill to an earlier
// state (Design Note "Timestamped buffer window for fills").
const MinFillReorderWindow = 500 * time.Millisecond

// Broker holds the Redis Streams endpoint. Field names keep the
// RABBITMQ_* environment variable names from spec §6.4 even though the
// transport underneath is Redis Streams (see DESIGN.md).
type Broker struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Exchange holds OKX API credentials and the private-channel connection
// and instrument details.
type Exchange struct {
	APIKey     string
	SecretKey  string
	Passphrase string
	Host       string
	Port       string
	Path       string
	InstID     string
	InstType   string
	TdMode     string
}

// DepthFeed holds the public market-data connection details consumed by
// the Depth Engine.
type DepthFeed struct {
	Host   string
	Port   string
	Path   string
	InstID string
}

// Postgres holds the ledger's Postgres connection details.
type Postgres struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Loaded is the resolved configuration ready for use by any of the three
// engine binaries.
type Loaded struct {
	Broker            Broker
	Exchange          Exchange
	DepthFeed         DepthFeed
	Postgres          Postgres
	FillReorderWindow time.Duration
	RequireExchange   bool
	ProfilerAddress   string
	ConsumerName      string
}

// Load reads process environment variables (optionally layered on a local
// .env file, used the way alanyoungcy-polymarketbot wires godotenv for dev)
// and validates them. requireExchange should be true for the Lifecycle
// Engine, which has no business running without OKX credentials, and false
// for the Depth Engine and Decision Relay.
func Load(requireExchange bool) (Loaded, error) {
	_ = godotenv.Load()

	cfg := Loaded{
		Broker: Broker{
			Host:     getenv("RABBITMQ_HOST", "localhost"),
			Port:     getenvInt("RABBITMQ_PORT", 5672),
			Username: getenv("RABBITMQ_USERNAME", "guest"),
			Password: getenv("RABBITMQ_PASSWORD", "guest"),
		},
		Exchange: Exchange{
			APIKey:     os.Getenv("OKX_API_KEY"),
			SecretKey:  os.Getenv("OKX_SECRET_KEY"),
			Passphrase: os.Getenv("OKX_PASSPHRASE"),
			Host:       getenv("OKX_WS_HOST", "ws.okx.com:8443"),
			Port:       getenv("OKX_WS_PORT", "443"),
			Path:       getenv("OKX_WS_PRIVATE_PATH", "/ws/v5/private"),
			InstID:     getenv("OKX_INST_ID", "BTC-USDT-SWAP"),
			InstType:   getenv("OKX_INST_TYPE", "SWAP"),
			TdMode:     getenv("OKX_TD_MODE", "cross"),
		},
		DepthFeed: DepthFeed{
			Host:   getenv("OKX_WS_HOST", "ws.okx.com:8443"),
			Port:   getenv("OKX_WS_PORT", "443"),
			Path:   getenv("OKX_WS_PUBLIC_PATH", "/ws/v5/public"),
			InstID: getenv("OKX_INST_ID", "BTC-USDT-SWAP"),
		},
		Postgres: Postgres{
			Host:     getenv("POSTGRES_HOST", "localhost"),
			Port:     getenvInt("POSTGRES_PORT", 5432),
			User:     getenv("POSTGRES_USER", "postgres"),
			Password: getenv("POSTGRES_PASSWORD", "postgres"),
			Database: getenv("POSTGRES_DATABASE", "marketpipeline"),
			SSLMode:  getenv("POSTGRES_SSLMODE", "disable"),
		},
		FillReorderWindow: getenvDuration("FILL_REORDER_WINDOW", 2*time.Second),
		RequireExchange:   requireExchange,
		ProfilerAddress:   os.Getenv("PYROSCOPE_SERVER_ADDRESS"),
		ConsumerName:      getenv("CONSUMER_NAME", hostnameOrFallback()),
	}

	if cfg.FillReorderWindow < MinFillReorderWindow && os.Getenv("FILL_REORDER_WINDOW_OVERRIDE") == "" {
		return Loaded{}, errors.New("fill reorder window below 500ms floor, set FILL_REORDER_WINDOW_OVERRIDE to confirm")
	}

	if requireExchange {
		if cfg.Exchange.APIKey == "" || cfg.Exchange.SecretKey == "" || cfg.Exchange.Passphrase == "" {
			return Loaded{}, errors.New("missing OKX credentials: OKX_API_KEY, OKX_SECRET_KEY, OKX_PASSPHRASE are required")
		}
	}

	return cfg, nil
}

func hostnameOrFallback() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "marketpipeline"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
