package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Storage struct {
	Path string
	// Sync fsyncs the WAL on every commit
	Sync bool
}

type API struct {
	Addr        string
	CORSOrigins []string
}

type Exchange struct {
	// MatchPageSize bounds how many resting orders one book page loads
	MatchPageSize int
	// ListPageSize is the order listing page size
	ListPageSize int
	// MaxCommitRetries bounds re-runs of a unit that lost a version race
	MaxCommitRetries int
}

type Log struct {
	Level string
	// File, when set, receives a copy of every log line
	File string
}

type Metrics struct {
	Namespace string
}

// Kafka publishing is disabled when Brokers is empty
type Kafka struct {
	Brokers     []string
	TradesTopic string
}

// LoadGen feeds random orders into a running node (devnet only)
type LoadGen struct {
	Enabled   bool
	BatchSize int
	Interval  time.Duration
	Traders   int
}

type Config struct {
	Storage  Storage
	API      API
	Exchange Exchange
	Log      Log
	Metrics  Metrics
	Kafka    Kafka
	LoadGen  LoadGen
}

func Default() Config {
	return Config{
		Storage: Storage{
			Path: "data/goldex",
			Sync: true,
		},
		API: API{
			Addr:        ":8080",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Exchange: Exchange{
			MatchPageSize:    100,
			ListPageSize:     10,
			MaxCommitRetries: 8,
		},
		Log: Log{
			Level: "info",
		},
		Metrics: Metrics{
			Namespace: "goldex",
		},
		Kafka: Kafka{
			TradesTopic: "goldex.trades",
		},
		LoadGen: LoadGen{
			BatchSize: 10,
			Interval:  100 * time.Millisecond,
			Traders:   50,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Storage.Path = getEnv("DB_PATH", cfg.Storage.Path)
	if sync := os.Getenv("DB_SYNC"); sync != "" {
		cfg.Storage.Sync = sync == "true"
	}

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.API.CORSOrigins = splitList(origins)
	}

	cfg.Exchange.MatchPageSize = getEnvInt("MATCH_PAGE_SIZE", cfg.Exchange.MatchPageSize)
	cfg.Exchange.ListPageSize = getEnvInt("LIST_PAGE_SIZE", cfg.Exchange.ListPageSize)
	cfg.Exchange.MaxCommitRetries = getEnvInt("MAX_COMMIT_RETRIES", cfg.Exchange.MaxCommitRetries)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	cfg.Metrics.Namespace = getEnv("METRICS_NAMESPACE", cfg.Metrics.Namespace)

	// Example: "broker1:9092,broker2:9092"
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	cfg.Kafka.TradesTopic = getEnv("KAFKA_TRADES_TOPIC", cfg.Kafka.TradesTopic)

	if enabled := os.Getenv("LOADGEN_ENABLED"); enabled != "" {
		cfg.LoadGen.Enabled = enabled == "true"
	}
	cfg.LoadGen.BatchSize = getEnvInt("LOADGEN_BATCH", cfg.LoadGen.BatchSize)
	cfg.LoadGen.Traders = getEnvInt("LOADGEN_TRADERS", cfg.LoadGen.Traders)
	if ms := os.Getenv("LOADGEN_INTERVAL_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil && n > 0 {
			cfg.LoadGen.Interval = time.Duration(n) * time.Millisecond
		}
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt ignores values that are not non-negative integers
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			return n
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
