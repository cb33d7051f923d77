package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/engine"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Port string

	Engine engine.Config

	CacheTTL        time.Duration
	RateLimitCap    int
	RateLimitRefill time.Duration

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	eng := engine.DefaultConfig()
	eng.GlobalConcurrency = int64(getEnvInt("GLOBAL_CONCURRENCY", int(eng.GlobalConcurrency)))
	eng.PerSourceConcurrency = int64(getEnvInt("PER_SOURCE_CONCURRENCY", int(eng.PerSourceConcurrency)))
	eng.MaxAttempts = getEnvInt("MAX_RETRIES", eng.MaxAttempts)
	eng.BaseBackoff = getEnvDuration("BASE_BACKOFF", eng.BaseBackoff)
	eng.PerAttemptTimeout = getEnvDuration("PER_ATTEMPT_TIMEOUT", eng.PerAttemptTimeout)
	eng.QueryDeadline = getEnvDuration("QUERY_DEADLINE", eng.QueryDeadline)
	eng.PageCap = getEnvInt("PAGE_CAP", eng.PageCap)
	eng.SimilarityThreshold = getEnvFloat("SIMILARITY_THRESHOLD", eng.SimilarityThreshold)
	eng.PriceTolerance = getEnvFloat("PRICE_TOLERANCE", eng.PriceTolerance)
	eng.SizeTolerance = getEnvFloat("SIZE_TOLERANCE", eng.SizeTolerance)
	eng.BaseCurrency = getEnv("BASE_CURRENCY", eng.BaseCurrency)
	eng.FXRates = getEnvRates("FX_RATES", map[string]float64{"USD": 1, "ARS": 0.001, "EUR": 1.08})

	return &Config{
		Port: getEnv("PORT", "8080"),

		Engine: eng,

		CacheTTL:        getEnvDuration("CACHE_TTL", 30*time.Second),
		RateLimitCap:    getEnvInt("RATE_LIMIT_CAP", 10),
		RateLimitRefill: getEnvDuration("RATE_LIMIT_REFILL", time.Minute),

		PostgresHost:     getEnv("POSTGRES_HOST", ""),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "aggregator"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "listings_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
	}
}

// DSN returns the PostgreSQL connection string, or "" when persistence is
// not configured.
func (c *Config) DSN() string {
	if c.PostgresHost == "" {
		return ""
	}
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvRates parses "USD=1,ARS=0.001" into a rate table.
func getEnvRates(key string, fallback map[string]float64) map[string]float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	rates := make(map[string]float64)
	for _, pair := range strings.Split(val, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		if f, err := strconv.ParseFloat(parts[1], 64); err == nil {
			rates[strings.ToUpper(parts[0])] = f
		}
	}
	if len(rates) == 0 {
		return fallback
	}
	return rates
}
