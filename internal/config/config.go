package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/reseller-geocoder/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Provider and backend names accepted by Load.
const (
	ProviderOpenCage = "opencage"
	ProviderMapbox   = "mapbox"

	CacheSQLite = "sqlite"
	CacheMySQL  = "mysql"
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

var defaultFallbackCountries = "France,United Kingdom,Singapore,Australia,China,Japan,Korea,Netherlands"

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Geocoding providers.
	PrimaryProvider      string
	OpenCageAPIKey       string
	MapboxToken          string
	GeocodeLanguage      string
	GeocodeTimeout       time.Duration
	GeocodeMinInterval   time.Duration
	NominatimEnabled     bool
	NominatimURL         string
	NominatimUserAgent   string
	NominatimMinInterval time.Duration

	// Attempt plan.
	FallbackCountries []string
	USHeuristic       bool

	// Coordinate cache.
	CacheBackend    string
	CacheDir        string
	CacheMemorySize int
	MySQLDSN        string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	// Batch pacing.
	BatchMode    string
	BatchWorkers int
	BatchDelay   time.Duration

	// Kafka stream.
	PipelineEnabled    bool
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaSinkTopic     string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is loaded first when present;
// variables already set in the environment take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}
	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	p := parser{}
	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		PrimaryProvider:      strings.ToLower(sharedcfg.EnvOrDefault("PRIMARY_PROVIDER", ProviderOpenCage)),
		OpenCageAPIKey:       os.Getenv("OPENCAGE_API_KEY"),
		MapboxToken:          os.Getenv("MAPBOX_TOKEN"),
		GeocodeLanguage:      sharedcfg.EnvOrDefault("GEOCODE_LANGUAGE", "en"),
		GeocodeTimeout:       p.duration("GEOCODE_TIMEOUT", "10s", false),
		GeocodeMinInterval:   p.duration("GEOCODE_MIN_INTERVAL", "1s", true),
		NominatimEnabled:     p.boolean("NOMINATIM_ENABLED", true),
		NominatimURL:         sharedcfg.EnvOrDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		NominatimUserAgent:   sharedcfg.EnvOrDefault("NOMINATIM_USER_AGENT", "reseller-geocoder/1.0"),
		NominatimMinInterval: p.duration("NOMINATIM_MIN_INTERVAL", "1500ms", true),

		FallbackCountries: parseList(sharedcfg.EnvOrDefault("GEOCODE_FALLBACK_COUNTRIES", defaultFallbackCountries)),
		USHeuristic:       p.boolean("GEOCODE_US_HEURISTIC", true),

		CacheBackend:    strings.ToLower(sharedcfg.EnvOrDefault("CACHE_BACKEND", CacheSQLite)),
		CacheDir:        sharedcfg.EnvOrDefault("CACHE_DIR", "./data"),
		CacheMemorySize: p.integer("CACHE_MEMORY_SIZE", 1000, 0),
		MySQLDSN:        os.Getenv("MYSQL_DSN"),
		RedisAddr:       sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         p.integer("REDIS_DB", 0, 0),

		BatchMode:    strings.ToLower(sharedcfg.EnvOrDefault("BATCH_MODE", "pooled")),
		BatchWorkers: p.integer("BATCH_WORKERS", 3, 1),
		BatchDelay:   p.duration("BATCH_DELAY", "1s", true),

		PipelineEnabled:    p.boolean("PIPELINE_ENABLED", false),
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "reseller-records"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "geocoded-resellers"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "reseller-geocoder"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.PrimaryProvider {
	case ProviderOpenCage:
		if c.OpenCageAPIKey == "" {
			return fmt.Errorf("OPENCAGE_API_KEY is required: %w", domain.ErrMissingCredential)
		}
	case ProviderMapbox:
		if c.MapboxToken == "" {
			return fmt.Errorf("MAPBOX_TOKEN is required: %w", domain.ErrMissingCredential)
		}
	default:
		return fmt.Errorf("invalid PRIMARY_PROVIDER %q: must be %q or %q", c.PrimaryProvider, ProviderOpenCage, ProviderMapbox)
	}

	if c.NominatimEnabled && strings.TrimSpace(c.NominatimUserAgent) == "" {
		return fmt.Errorf("NOMINATIM_USER_AGENT is required when NOMINATIM_ENABLED is true: %w", domain.ErrMissingUserAgent)
	}

	switch c.CacheBackend {
	case CacheSQLite, CacheRedis, CacheMemory:
	case CacheMySQL:
		if c.MySQLDSN == "" {
			return errors.New("MYSQL_DSN is required when CACHE_BACKEND is mysql")
		}
	default:
		return fmt.Errorf("invalid CACHE_BACKEND %q", c.CacheBackend)
	}

	if c.BatchMode != "pooled" && c.BatchMode != "sequential" {
		return fmt.Errorf("invalid BATCH_MODE %q: must be pooled or sequential", c.BatchMode)
	}

	if c.PipelineEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaSourceTopic == "" {
			return errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if c.KafkaSinkTopic == "" {
			return errors.New("KAFKA_SINK_TOPIC is required")
		}
	}
	return nil
}

// parser reads typed variables and keeps the first error.
type parser struct {
	err error
}

func (p *parser) duration(key, def string, allowZero bool) time.Duration {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		p.fail(fmt.Errorf("invalid %s", key))
		return 0
	}
	return d
}

func (p *parser) integer(key string, def, minimum int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum {
		p.fail(fmt.Errorf("invalid %s: must be an integer >= %d", key, minimum))
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(fmt.Errorf("invalid %s: must be true or false", key))
		return def
	}
	return b
}

func (p *parser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
