package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/couchcryptid/surf-ingest-service/internal/scheduler"
	"github.com/joho/godotenv"

	_ "time/tzdata" // timezone names resolve in minimal containers
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	Schedule         string
	ScheduleLocation *time.Location
	SchedulerEnabled bool
	SourceLocation   *time.Location

	// Empty means the embedded default catalog.
	CatalogPath string

	StoreBackend       string
	PostgresDSN        string
	PostgresMaxConns   int
	MongoURI           string
	MongoDatabase      string
	BuoyDedupCacheSize int

	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaReportTopic string

	PortusBaseURL       string
	SurfForecastBaseURL string
	UpstreamRPS         float64

	BuoyTimeout         time.Duration
	ForecastTimeout     time.Duration
	ForecastMaxAttempts int
	ForecastBackoffBase time.Duration
	// RetryJitter is the fraction by which backoff delays are randomized.
	RetryJitter   float64
	PolitenessMin time.Duration
	PolitenessMax time.Duration
}

// LoadEnvFile seeds the environment from a dotenv file. Variables already set
// take precedence, and a missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	scheduleLoc, err := parseLocation("SCHEDULE_TIMEZONE", scheduler.DefaultTimezone)
	if err != nil {
		return nil, err
	}
	sourceLoc, err := parseLocation("SOURCE_TIMEZONE", "Europe/Madrid")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:         sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
		Schedule:         sharedcfg.EnvOrDefault("SCHEDULE", scheduler.DefaultSchedule),
		ScheduleLocation: scheduleLoc,
		SourceLocation:   sourceLoc,
		CatalogPath:      os.Getenv("CATALOG_PATH"),

		StoreBackend:  strings.ToLower(sharedcfg.EnvOrDefault("STORE_BACKEND", BackendMemory)),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDatabase: sharedcfg.EnvOrDefault("MONGO_DATABASE", "surf"),

		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaReportTopic: sharedcfg.EnvOrDefault("KAFKA_REPORT_TOPIC", "surf-ingest-runs"),

		PortusBaseURL:       sharedcfg.EnvOrDefault("PORTUS_BASE_URL", "https://portus.puertos.es/portussvr/api/RTData/station"),
		SurfForecastBaseURL: sharedcfg.EnvOrDefault("SURF_FORECAST_BASE_URL", "https://es.surf-forecast.com/breaks"),
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg.SchedulerEnabled, err = parseBool("SCHEDULER_ENABLED", true)
	collect(err)
	cfg.KafkaEnabled, err = parseBool("KAFKA_ENABLED", false)
	collect(err)
	cfg.PostgresMaxConns, err = parsePositiveInt("POSTGRES_MAX_CONNS", 4)
	collect(err)
	cfg.BuoyDedupCacheSize, err = parseNonNegativeInt("BUOY_DEDUP_CACHE_SIZE", 10000)
	collect(err)
	cfg.ForecastMaxAttempts, err = parsePositiveInt("FORECAST_MAX_ATTEMPTS", 3)
	collect(err)
	cfg.UpstreamRPS, err = parseFloat("UPSTREAM_RPS", 1)
	collect(err)
	cfg.BuoyTimeout, err = parseDuration("BUOY_TIMEOUT", "15s", true)
	collect(err)
	cfg.ForecastTimeout, err = parseDuration("FORECAST_TIMEOUT", "12s", true)
	collect(err)
	cfg.ForecastBackoffBase, err = parseDuration("FORECAST_BACKOFF_BASE", "750ms", false)
	collect(err)
	cfg.RetryJitter, err = parseFloat("RETRY_JITTER", 0)
	collect(err)
	cfg.PolitenessMin, err = parseDuration("POLITENESS_MIN", "2.5s", false)
	collect(err)
	cfg.PolitenessMax, err = parseDuration("POLITENESS_MAX", "8s", false)
	collect(err)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required when STORE_BACKEND=postgres")
		}
	case BackendMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required when STORE_BACKEND=mongo")
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q: must be memory, postgres or mongo", c.StoreBackend)
	}
	if c.Schedule == "" {
		return errors.New("SCHEDULE is required")
	}
	if _, err := scheduler.Parse(c.Schedule); err != nil {
		return fmt.Errorf("invalid SCHEDULE: %w", err)
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaReportTopic == "" {
			return errors.New("KAFKA_REPORT_TOPIC is required")
		}
	}
	if c.RetryJitter > 1 {
		return errors.New("invalid RETRY_JITTER: must be between 0 and 1")
	}
	if c.PolitenessMax < c.PolitenessMin {
		return errors.New("POLITENESS_MAX must not be less than POLITENESS_MIN")
	}
	return nil
}

func parseLocation(key, fallback string) (*time.Location, error) {
	name := sharedcfg.EnvOrDefault(key, fallback)
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, name, err)
	}
	return loc, nil
}

func parseDuration(key, fallback string, positive bool) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d < 0 || (positive && d == 0) {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	n, err := parseInt(key, fallback)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseNonNegativeInt(key string, fallback int) (int, error) {
	n, err := parseInt(key, fallback)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: must be zero or greater", key)
	}
	return n, nil
}

func parseInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	return strconv.Atoi(s)
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}
