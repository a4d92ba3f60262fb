package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds configuration for the evaluator.
type Config struct {
	LogLevel  string
	LogFormat string

	Backend   BackendConfig
	Cache     CacheConfig
	Redis     RedisConfig
	Suggest   SuggestConfig
	Feedback  FeedbackConfig
	Analytics AnalyticsConfig
	DirectSQL DirectSQLConfig
	Events    EventsConfig
}

// BackendConfig holds settings for the evaluation backend HTTP API
type BackendConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	RateLimit      float64 // Requests per second, 0 disables throttling
	RateBurst      int
}

// CacheConfig holds in-process catalog cache settings
type CacheConfig struct {
	CatalogCacheSize int
	CatalogCacheTTL  time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled      bool
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SuggestConfig holds NLQ autocomplete settings
type SuggestConfig struct {
	QuietPeriod time.Duration // Debounce window before a lookup is issued
	CacheTTL    time.Duration // Redis cache TTL for lookup responses
	KeyPrefix   string
}

// FeedbackConfig holds feedback save settings
type FeedbackConfig struct {
	SavedDisplay time.Duration // How long the just-saved indicator stays on
}

// AnalyticsConfig holds settings for the NLQ analytics session
type AnalyticsConfig struct {
	PreferredConnection string // Connection chosen by default when present
	PromptSetFilter     string // Only prompt sets whose name contains this are offered
}

// DirectSQLConfig holds settings for executing analytic SQL against a local Postgres
type DirectSQLConfig struct {
	Enabled           bool
	DSN               string // Password may be left out and supplied encrypted
	EncryptedPassword string
	Passphrase        string
	Salt              string
	MaxOpenConns      int
	MaxIdleConns      int
	ConnMaxLifetime   time.Duration
	QueryTimeout      time.Duration
	MaxRows           int
}

// EventsConfig holds configuration for the audit event sink
type EventsConfig struct {
	Enabled       bool          // Whether to record events at all
	UseRedis      bool          // Buffer events in Redis instead of memory
	QueueName     string        // Queue key suffix
	BufferSize    int           // In-memory queue size
	FlushSize     int           // Flush after this many records
	FlushInterval time.Duration // Flush after this duration
	S3Bucket      string        // Empty selects the local file sink
	S3Region      string
	S3Prefix      string
	S3Endpoint    string // Custom endpoint for MinIO and friends
	S3AccessKey   string
	S3SecretKey   string
	FileTemplate  string // Local JSONL path template, %s is replaced by a timestamp
	FileMaxSize   int64
	FileMaxFiles  int
	PodName       string
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvFloat(key string, defaultValue float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	val := strings.ToLower(os.Getenv(key))
	switch val {
	case "":
		return defaultValue
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// LoadEnvFiles loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	baseURL := strings.TrimRight(getEnvString("BACKEND_URL", "http://localhost:8000"), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("BACKEND_URL is required")
	}

	cfg := &Config{
		LogLevel:  getEnvString("LOG_LEVEL", "warn"),
		LogFormat: getEnvString("LOG_FORMAT", "console"),
		Backend: BackendConfig{
			BaseURL:        baseURL,
			RequestTimeout: getEnvDuration("BACKEND_TIMEOUT", 120*time.Second),
			RateLimit:      getEnvFloat("BACKEND_RATE_LIMIT", 10),
			RateBurst:      getEnvInt("BACKEND_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			CatalogCacheSize: getEnvInt("CACHE_CATALOG_SIZE", 16),
			CatalogCacheTTL:  getEnvDuration("CACHE_CATALOG_TTL", 5*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:      getEnvBool("REDIS_ENABLED", false),
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Suggest: SuggestConfig{
			QuietPeriod: getEnvDuration("SUGGEST_QUIET_PERIOD", 300*time.Millisecond),
			CacheTTL:    getEnvDuration("SUGGEST_CACHE_TTL", 10*time.Minute),
			KeyPrefix:   getEnvString("SUGGEST_KEY_PREFIX", "nlq:suggest:"),
		},
		Feedback: FeedbackConfig{
			SavedDisplay: getEnvDuration("FEEDBACK_SAVED_DISPLAY", 2*time.Second),
		},
		Analytics: AnalyticsConfig{
			PreferredConnection: getEnvString("ANALYTICS_DEFAULT_CONNECTION", "PUB Prod"),
			PromptSetFilter:     getEnvString("ANALYTICS_PROMPT_SET_FILTER", "nlq"),
		},
		DirectSQL: DirectSQLConfig{
			Enabled:           getEnvBool("DIRECT_SQL_ENABLED", false),
			DSN:               getEnvString("DIRECT_SQL_DSN", ""),
			EncryptedPassword: getEnvString("DIRECT_SQL_PASSWORD_ENCRYPTED", ""),
			Passphrase:        getEnvString("ENCRYPTION_PASSPHRASE", ""),
			Salt:              getEnvString("ENCRYPTION_SALT", "nlq-eval"),
			MaxOpenConns:      getEnvInt("DIRECT_SQL_MAX_OPEN_CONNS", 4),
			MaxIdleConns:      getEnvInt("DIRECT_SQL_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime:   getEnvDuration("DIRECT_SQL_CONN_MAX_LIFETIME", 5*time.Minute),
			QueryTimeout:      getEnvDuration("DIRECT_SQL_QUERY_TIMEOUT", 60*time.Second),
			MaxRows:           getEnvInt("DIRECT_SQL_MAX_ROWS", 10000),
		},
		Events: EventsConfig{
			Enabled:       getEnvBool("EVENTS_ENABLED", false),
			UseRedis:      getEnvBool("EVENTS_USE_REDIS", false),
			QueueName:     getEnvString("EVENTS_QUEUE_NAME", "nlq-eval-events"),
			BufferSize:    getEnvInt("EVENTS_BUFFER_SIZE", 1000),
			FlushSize:     getEnvInt("EVENTS_FLUSH_SIZE", 100),
			FlushInterval: getEnvDuration("EVENTS_FLUSH_INTERVAL", time.Minute),
			S3Bucket:      getEnvString("EVENTS_S3_BUCKET", ""),
			S3Region:      getEnvString("EVENTS_S3_REGION", "us-east-1"),
			S3Prefix:      getEnvString("EVENTS_S3_PREFIX", "events/"),
			S3Endpoint:    getEnvString("EVENTS_S3_ENDPOINT", ""),
			S3AccessKey:   getEnvString("EVENTS_S3_ACCESS_KEY", ""),
			S3SecretKey:   getEnvString("EVENTS_S3_SECRET_KEY", ""),
			FileTemplate:  getEnvString("EVENTS_FILE_TEMPLATE", "nlq-eval-events-%s.jsonl"),
			FileMaxSize:   getEnvInt64("EVENTS_FILE_MAX_SIZE", 10_485_760), // default 10 MB
			FileMaxFiles:  getEnvInt("EVENTS_FILE_MAX_FILES", 5),
			PodName:       getEnvString("POD_NAME", "evaluator-0"),
		},
	}

	if cfg.DirectSQL.Enabled && cfg.DirectSQL.DSN == "" {
		return nil, fmt.Errorf("DIRECT_SQL_DSN is required when DIRECT_SQL_ENABLED is set")
	}
	if cfg.DirectSQL.EncryptedPassword != "" && cfg.DirectSQL.Passphrase == "" {
		return nil, fmt.Errorf("ENCRYPTION_PASSPHRASE is required to decrypt DIRECT_SQL_PASSWORD_ENCRYPTED")
	}
	if cfg.Events.UseRedis && !cfg.Redis.Enabled {
		return nil, fmt.Errorf("EVENTS_USE_REDIS requires REDIS_ENABLED")
	}

	return cfg, nil
}
