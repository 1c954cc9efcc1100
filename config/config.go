package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"immo-scraper/models"
	"immo-scraper/scraper/portal"
)

// Dedupe levels.
const (
	DedupeNone        = "none"
	DedupePortal      = "portal"
	DedupeCrossPortal = "cross_portal"
)

// Snapshot backends.
const (
	SnapshotFile     = "file"
	SnapshotPostgres = "postgres"
	SnapshotRedis    = "redis"
	SnapshotMongo    = "mongo"
)

// Config holds all application configuration loaded from environment variables
// and the optional YAML overlay.
type Config struct {
	PostgresEnabled  bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	MaxConcurrency     int
	MaxResults         int
	PagesToScrape      int
	PageTimeout        time.Duration
	RateLimit          time.Duration
	RateLimitPerMinute int

	MaxRetries       int
	RetryBase        time.Duration
	RetryMax         time.Duration
	RetryMultiplier  float64
	BreakerThreshold int
	BreakerCooldown  time.Duration

	TrackingMode   bool
	DedupeLevel    string
	Searches       []string
	SourcePriority []models.Source
	Selectors      map[models.Source]portal.Selectors

	DatasetDir      string
	CSVOutputPath   string
	SnapshotBackend string
	SnapshotPath    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MongoURI string
	MongoDB  string

	KafkaBrokers []string
	KafkaTopic   string
	WebhookURL   string

	S3Bucket string
	S3Prefix string
	S3Region string

	// Schedule is a cron expression; when set the aggregator runs on it
	// until interrupted instead of once.
	Schedule string

	APIAddr   string
	ChromeBin string
	Debug     bool
}

// overlay is the shape of the YAML file named by CONFIG_FILE.
type overlay struct {
	Searches       []string                           `yaml:"searches"`
	SourcePriority []models.Source                    `yaml:"source_priority"`
	Selectors      map[models.Source]portal.Selectors `yaml:"selectors"`
}

// ValidationError reports every problem found in a Config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Load reads the .env file, the environment and the optional YAML overlay.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		PostgresEnabled:  getEnvBool("POSTGRES_ENABLED", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "immo_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		MaxConcurrency:     getEnvInt("MAX_CONCURRENCY", 3),
		MaxResults:         getEnvInt("MAX_RESULTS", 500),
		PagesToScrape:      getEnvInt("PAGES_TO_SCRAPE", 3),
		PageTimeout:        getEnvDuration("PAGE_TIMEOUT_MS", 60000),
		RateLimit:          getEnvDuration("RATE_LIMIT_MS", 2000),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 20),

		MaxRetries:       getEnvInt("MAX_RETRIES", 3),
		RetryBase:        getEnvDuration("RETRY_BASE_MS", 1000),
		RetryMax:         getEnvDuration("RETRY_MAX_MS", 30000),
		RetryMultiplier:  getEnvFloat("RETRY_MULTIPLIER", 2),
		BreakerThreshold: getEnvInt("BREAKER_THRESHOLD", 5),
		BreakerCooldown:  getEnvDuration("BREAKER_COOLDOWN_MS", 60000),

		TrackingMode: getEnvBool("TRACKING_MODE", false),
		DedupeLevel:  getEnv("DEDUPE_LEVEL", DedupeCrossPortal),
		Searches:     getEnvList("SEARCH_URLS"),

		DatasetDir:      getEnv("DATASET_DIR", "./output"),
		CSVOutputPath:   getEnv("CSV_OUTPUT_PATH", "./output/listings.csv"),
		SnapshotBackend: getEnv("SNAPSHOT_BACKEND", SnapshotFile),
		SnapshotPath:    getEnv("SNAPSHOT_PATH", "./output/state_snapshot.json"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASS", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:  getEnv("MONGO_DB", "immo"),

		KafkaBrokers: getEnvList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "listing-changes"),
		WebhookURL:   getEnv("WEBHOOK_URL", ""),

		S3Bucket: getEnv("S3_BUCKET", ""),
		S3Prefix: getEnv("S3_PREFIX", "immo-scraper"),
		S3Region: getEnv("S3_REGION", "eu-central-1"),

		Schedule: getEnv("SCHEDULE", ""),

		APIAddr:   getEnv("API_ADDR", ""),
		ChromeBin: getEnv("CHROME_BIN", ""),
		Debug:     getEnvBool("DEBUG", false),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if len(cfg.SourcePriority) == 0 {
		cfg.SourcePriority = models.DefaultSourcePriority
	}
	return cfg, nil
}

// applyFile merges the YAML overlay. Searches from the file are appended to
// SEARCH_URLS; priority and selectors replace the defaults.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.Searches = append(c.Searches, o.Searches...)
	if len(o.SourcePriority) > 0 {
		c.SourcePriority = o.SourcePriority
	}
	if len(o.Selectors) > 0 {
		c.Selectors = o.Selectors
	}
	return nil
}

// Validate checks the configuration before any fetch is made.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if err := portal.ValidateURLs(c.Searches); err != nil {
		add("%v", err)
	}
	if c.MaxConcurrency < 1 {
		add("MAX_CONCURRENCY must be at least 1")
	}
	if c.MaxResults < 1 {
		add("MAX_RESULTS must be at least 1")
	}
	if c.PagesToScrape < 1 {
		add("PAGES_TO_SCRAPE must be at least 1")
	}
	if c.MaxRetries < 0 {
		add("MAX_RETRIES must not be negative")
	}
	if c.RetryMultiplier < 1 {
		add("RETRY_MULTIPLIER must be at least 1")
	}
	if c.BreakerThreshold < 1 {
		add("BREAKER_THRESHOLD must be at least 1")
	}

	switch c.DedupeLevel {
	case DedupeNone, DedupePortal, DedupeCrossPortal:
	default:
		add("unknown DEDUPE_LEVEL %q", c.DedupeLevel)
	}
	switch c.SnapshotBackend {
	case SnapshotFile, SnapshotRedis, SnapshotMongo:
	case SnapshotPostgres:
		if !c.PostgresEnabled {
			add("SNAPSHOT_BACKEND=postgres requires POSTGRES_ENABLED")
		}
	default:
		add("unknown SNAPSHOT_BACKEND %q", c.SnapshotBackend)
	}

	for _, src := range c.SourcePriority {
		if _, ok := portal.Lookup(src); !ok {
			add("unknown source %q in priority list", src)
		}
	}
	for src := range c.Selectors {
		if _, ok := portal.Lookup(src); !ok {
			add("selectors for unknown source %q", src)
		}
	}

	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			add("invalid SCHEDULE %q: %v", c.Schedule, err)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
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
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration reads a millisecond count.
func getEnvDuration(key string, fallbackMs int) time.Duration {
	return time.Duration(getEnvInt(key, fallbackMs)) * time.Millisecond
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
