package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewAccessConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	AuthTokenSecret string
	AuthTokenTTL    time.Duration
	AdminTokenTTL   time.Duration
	AuthIssuer      string

	RoleCacheSize int
	RoleCacheTTL  time.Duration

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	LoginRatePerSec  float64
	LoginBurst       int
	LoginRateEnabled bool

	OutboxStream   string
	OutboxInterval time.Duration
	OutboxBatch    int

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	SeedDemoData bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	environment := strings.TrimSpace(v.GetString("ENVIRONMENT"))

	return Config{
		AppName:     v.GetString("APP_SERVICE"),
		AppVersion:  v.GetString("APP_VERSION"),
		Environment: environment,
		HTTPAddr:    v.GetString("HTTP_ADDR"),
		NodeID:      v.GetInt64("NODE_ID"),

		AuthTokenSecret: strings.TrimSpace(v.GetString("AUTH_TOKEN_SECRET")),
		AuthTokenTTL:    v.GetDuration("AUTH_TOKEN_TTL"),
		AdminTokenTTL:   v.GetDuration("ADMIN_TOKEN_TTL"),
		AuthIssuer:      v.GetString("AUTH_ISSUER"),

		RoleCacheSize: v.GetInt("ROLE_CACHE_SIZE"),
		RoleCacheTTL:  v.GetDuration("ROLE_CACHE_TTL"),

		RedisAddr:        strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:    v.GetString("REDIS_PASSWORD"),
		RedisDB:          v.GetInt("REDIS_DB"),
		LoginRatePerSec:  v.GetFloat64("LOGIN_RATE_PER_SEC"),
		LoginBurst:       v.GetInt("LOGIN_BURST"),
		LoginRateEnabled: v.GetBool("LOGIN_RATE_ENABLED"),

		OutboxStream:   strings.TrimSpace(v.GetString("OUTBOX_STREAM")),
		OutboxInterval: v.GetDuration("OUTBOX_INTERVAL"),
		OutboxBatch:    v.GetInt("OUTBOX_BATCH"),

		OTLPEndpoint: v.GetString("OTLP_ENDPOINT"),

		DBType:            v.GetString("DATABASE_TYPE"),
		DBHost:            v.GetString("DATABASE_HOST"),
		DBPort:            v.GetString("DATABASE_PORT"),
		DBName:            v.GetString("DATABASE_NAME"),
		DBUser:            v.GetString("DATABASE_USER"),
		DBPassword:        v.GetString("DATABASE_PASSWORD"),
		DBSSLMode:         v.GetString("DATABASE_SSLMODE"),
		DBMaxIdleConn:     v.GetInt("DATABASE_MAX_IDLE_CONN"),
		DBMaxOpenConn:     v.GetInt("DATABASE_MAX_OPEN_CONN"),
		DBConnMaxLifetime: v.GetInt("DATABASE_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTime: v.GetInt("DATABASE_CONN_MAX_IDLE_TIME"),

		SeedDemoData: v.GetBool("SEED_DEMO_DATA") && environment != "production",
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_SERVICE", "quickcart")
	v.SetDefault("APP_VERSION", "0.1.0")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("NODE_ID", 1)

	v.SetDefault("AUTH_TOKEN_TTL", "720h")
	v.SetDefault("ADMIN_TOKEN_TTL", "12h")
	v.SetDefault("AUTH_ISSUER", "quickcart")

	v.SetDefault("ROLE_CACHE_SIZE", 256)
	v.SetDefault("ROLE_CACHE_TTL", "5m")

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOGIN_RATE_PER_SEC", 0.2)
	v.SetDefault("LOGIN_BURST", 5)
	v.SetDefault("LOGIN_RATE_ENABLED", true)

	v.SetDefault("OUTBOX_STREAM", "quickcart.memberships")
	v.SetDefault("OUTBOX_INTERVAL", "5s")
	v.SetDefault("OUTBOX_BATCH", 100)

	v.SetDefault("OTLP_ENDPOINT", "localhost:4317")

	v.SetDefault("DATABASE_TYPE", "postgres")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", "5432")
	v.SetDefault("DATABASE_NAME", "quickcart")
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_IDLE_CONN", 10)
	v.SetDefault("DATABASE_MAX_OPEN_CONN", 50)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", 300)
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", 60)

	v.SetDefault("SEED_DEMO_DATA", false)
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}
