package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Mongo        MongoConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Retry        RetryConfig
	Chat         ChatConfig
	Reconciler   ReconcilerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	WSPort                string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MongoConfig holds the optional message store connection.
type MongoConfig struct {
	URI      string
	Database string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token verification parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	// Issuer and Audience are enforced when set.
	Issuer        string
	Audience      string
	LeewaySeconds int
}

// NotificationConfig controls push delivery.
type NotificationConfig struct {
	FirebaseCredentialsFile string
	Workers                 int
	QueueSize               int
	PushTimeoutSeconds      int
	// RecipientPolicy selects who receives moderator notifications: "first_admin" or "all_admins".
	RecipientPolicy string
}

// RetryConfig parameterizes the durable write retrier.
type RetryConfig struct {
	Attempts              int
	DelayMillis           int
	AttemptTimeoutSeconds int
}

// ChatConfig controls message storage and relay.
type ChatConfig struct {
	// MessageStore is "postgres" or "mongo".
	MessageStore string
	RedisRelay   bool
	// AllowedOrigins limits websocket browser origins; empty accepts any.
	AllowedOrigins []string
}

// ReconcilerConfig drives the onboarding reconciliation job.
type ReconcilerConfig struct {
	Enabled         bool
	IntervalMinutes int
	GraceSeconds    int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "marketplace-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			WSPort:                getEnv("APP_WS_PORT", "8081"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Mongo: MongoConfig{
			URI:      os.Getenv("MONGO_URI"),
			Database: getEnv("MONGO_DATABASE", "marketplace"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			Issuer:                os.Getenv("AUTH_JWT_ISSUER"),
			Audience:              os.Getenv("AUTH_JWT_AUDIENCE"),
			LeewaySeconds:         getEnvAsInt("AUTH_JWT_LEEWAY_SECONDS", 30),
		},
		Notification: NotificationConfig{
			FirebaseCredentialsFile: os.Getenv("FIREBASE_CREDENTIALS_FILE"),
			Workers:                 getEnvAsInt("NOTIFY_WORKERS", 4),
			QueueSize:               getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
			PushTimeoutSeconds:      getEnvAsInt("NOTIFY_PUSH_TIMEOUT_SECONDS", 10),
			RecipientPolicy:         getEnv("NOTIFY_RECIPIENT_POLICY", "first_admin"),
		},
		Retry: RetryConfig{
			Attempts:              getEnvAsInt("STORE_RETRY_ATTEMPTS", 3),
			DelayMillis:           getEnvAsInt("STORE_RETRY_DELAY_MS", 200),
			AttemptTimeoutSeconds: getEnvAsInt("STORE_ATTEMPT_TIMEOUT_SECONDS", 5),
		},
		Chat: ChatConfig{
			MessageStore:   getEnv("CHAT_MESSAGE_STORE", "postgres"),
			RedisRelay:     getEnvAsBool("CHAT_REDIS_RELAY", true),
			AllowedOrigins: getEnvAsList("CHAT_WS_ALLOWED_ORIGINS"),
		},
		Reconciler: ReconcilerConfig{
			Enabled:         getEnvAsBool("RECONCILER_ENABLED", true),
			IntervalMinutes: getEnvAsInt("RECONCILER_INTERVAL_MINUTES", 5),
			GraceSeconds:    getEnvAsInt("RECONCILER_GRACE_SECONDS", 120),
		},
	}

	if cfg.Chat.MessageStore != "postgres" && cfg.Chat.MessageStore != "mongo" {
		return nil, fmt.Errorf("invalid CHAT_MESSAGE_STORE: %q", cfg.Chat.MessageStore)
	}
	if cfg.Chat.MessageStore == "mongo" && cfg.Mongo.URI == "" {
		return nil, fmt.Errorf("MONGO_URI required when CHAT_MESSAGE_STORE=mongo")
	}
	if cfg.Reconciler.Grace() <= cfg.Retry.Budget() {
		return nil, fmt.Errorf("RECONCILER_GRACE_SECONDS must exceed the store retry budget of %s", cfg.Retry.Budget())
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// WSAddr returns the websocket bind address.
func (a AppConfig) WSAddr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.WSPort)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// PushTimeout bounds a single push provider call.
func (n NotificationConfig) PushTimeout() time.Duration {
	if n.PushTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n.PushTimeoutSeconds) * time.Second
}

// Delay returns the sleep between write attempts.
func (r RetryConfig) Delay() time.Duration {
	return time.Duration(r.DelayMillis) * time.Millisecond
}

// Budget is the longest a retried write can take before giving up.
func (r RetryConfig) Budget() time.Duration {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(attempts) * (r.AttemptTimeout() + r.Delay())
}

// Grace is how long a created user may wait for its request to be finalized
// before the reconciler takes over.
func (r ReconcilerConfig) Grace() time.Duration {
	return time.Duration(r.GraceSeconds) * time.Second
}

// AttemptTimeout bounds a single write attempt.
func (r RetryConfig) AttemptTimeout() time.Duration {
	if r.AttemptTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(r.AttemptTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
