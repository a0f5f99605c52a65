package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/angelmondragon/tradepost/pkg/enums"
)

const (
	EnvPrefix = "TRADEPOST"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	OutboxTransportRedis  = "redis"
	OutboxTransportPubSub = "pubsub"
)

const (
	EnvAppEnv            = "TRADEPOST_APP_ENV"
	EnvPort              = "TRADEPOST_APP_PORT"
	EnvLogLevel          = "TRADEPOST_LOG_LEVEL"
	EnvDBDSN             = "TRADEPOST_DB_DSN"
	EnvDBDriver          = "TRADEPOST_DB_DRIVER"
	EnvDBHost            = "TRADEPOST_DB_HOST"
	EnvDBUser            = "TRADEPOST_DB_USER"
	EnvDBName            = "TRADEPOST_DB_NAME"
	EnvRedisURL          = "TRADEPOST_REDIS_URL"
	EnvJWTSecret         = "TRADEPOST_JWT_SECRET"
	EnvJWTIssuer         = "TRADEPOST_JWT_ISSUER"
	EnvOfferTTL          = "TRADEPOST_OFFER_TTL"
	EnvStockLockAttempts = "TRADEPOST_STOCK_LOCK_ATTEMPTS"
	EnvPickupWindowStart = "TRADEPOST_PICKUP_WINDOW_START"
	EnvCronInterval      = "TRADEPOST_CRON_INTERVAL"
	EnvOutboxTransport   = "TRADEPOST_OUTBOX_TRANSPORT"
	EnvGCPProjectID      = "TRADEPOST_GCP_PROJECT_ID"
	EnvPubSubTopic       = "TRADEPOST_PUBSUB_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	JWT    JWTConfig
	Engine EngineConfig
	Cron   CronConfig
	Outbox OutboxConfig
	PubSub PubSubConfig
	Limits RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Engine.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Outbox.validate(cfg.PubSub); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TRADEPOST_APP_ENV" required:"true"`
	Port         string `envconfig:"TRADEPOST_APP_PORT" default:"8080"`
	MetricsAddr  string `envconfig:"TRADEPOST_METRICS_ADDR" default:":9090"`
	LogLevel     string `envconfig:"TRADEPOST_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TRADEPOST_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"TRADEPOST_LOG_FORMAT" default:"json"`
	// CORSOrigins is a comma separated allow list.
	CORSOrigins []string `envconfig:"TRADEPOST_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN         string `envconfig:"TRADEPOST_DB_DSN"`
	Driver      string `envconfig:"TRADEPOST_DB_DRIVER" default:"postgres"`
	AutoMigrate bool   `envconfig:"TRADEPOST_DB_AUTO_MIGRATE" default:"false"`

	LegacyHost     string `envconfig:"TRADEPOST_DB_HOST"`
	LegacyPort     int    `envconfig:"TRADEPOST_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TRADEPOST_DB_USER"`
	LegacyPassword string `envconfig:"TRADEPOST_DB_PASSWORD"`
	LegacyName     string `envconfig:"TRADEPOST_DB_NAME"`
	LegacySSLMode  string `envconfig:"TRADEPOST_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TRADEPOST_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TRADEPOST_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TRADEPOST_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TRADEPOST_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQuery logs statements at warn when they exceed it; zero disables.
	SlowQuery time.Duration `envconfig:"TRADEPOST_DB_SLOW_QUERY" default:"250ms"`
	// TxAttempts bounds retries of serialization failures and deadlocks.
	TxAttempts int `envconfig:"TRADEPOST_DB_TX_ATTEMPTS" default:"3"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TRADEPOST_REDIS_URL"`
	Address      string        `envconfig:"TRADEPOST_REDIS_ADDR"`
	Password     string        `envconfig:"TRADEPOST_REDIS_PASSWORD"`
	DB           int           `envconfig:"TRADEPOST_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TRADEPOST_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TRADEPOST_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TRADEPOST_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TRADEPOST_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TRADEPOST_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TRADEPOST_JWT_SECRET"`
	Issuer            string `envconfig:"TRADEPOST_JWT_ISSUER" default:"tradepost"`
	ExpirationMinutes int    `envconfig:"TRADEPOST_JWT_EXPIRATION_MINUTES" default:"60"`
}

// EngineConfig tunes the reservation, offer and pickup rules.
type EngineConfig struct {
	OfferTTL          time.Duration `envconfig:"TRADEPOST_OFFER_TTL" default:"240h"`
	StockLockAttempts int           `envconfig:"TRADEPOST_STOCK_LOCK_ATTEMPTS" default:"8"`
	StockLockBackoff  time.Duration `envconfig:"TRADEPOST_STOCK_LOCK_BACKOFF" default:"1ms"`
	DefaultCurrency   string        `envconfig:"TRADEPOST_DEFAULT_CURRENCY" default:"USD"`
	PickupWindowDays  int           `envconfig:"TRADEPOST_PICKUP_WINDOW_DAYS" default:"7"`
	PickupWindowStart string        `envconfig:"TRADEPOST_PICKUP_WINDOW_START" default:"09:00"`
	PickupWindowEnd   string        `envconfig:"TRADEPOST_PICKUP_WINDOW_END" default:"18:00"`
	PickupLocation    string        `envconfig:"TRADEPOST_PICKUP_LOCATION"`
}

func (e EngineConfig) validate() error {
	if e.OfferTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvOfferTTL)
	}
	if e.StockLockAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvStockLockAttempts)
	}
	if e.PickupWindowDays <= 0 {
		return fmt.Errorf("pickup window days must be positive")
	}
	if _, err := enums.ParseCurrency(e.DefaultCurrency); err != nil {
		return fmt.Errorf("default currency: %w", err)
	}
	return nil
}

type CronConfig struct {
	Interval time.Duration `envconfig:"TRADEPOST_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"TRADEPOST_CRON_LOCK_TTL" default:"5m"`
}

// RateLimitConfig caps write traffic per user; a zero limit disables it.
type RateLimitConfig struct {
	Window          time.Duration `envconfig:"TRADEPOST_RATE_LIMIT_WINDOW" default:"1m"`
	BidsPerWindow   int64         `envconfig:"TRADEPOST_RATE_LIMIT_BIDS" default:"30"`
	WritesPerWindow int64         `envconfig:"TRADEPOST_RATE_LIMIT_WRITES" default:"120"`
}

// OutboxConfig tunes the relay that moves outbox rows onto a Redis stream
// or a Pub/Sub topic.
type OutboxConfig struct {
	Transport    string        `envconfig:"TRADEPOST_OUTBOX_TRANSPORT" default:"redis"`
	Stream       string        `envconfig:"TRADEPOST_OUTBOX_STREAM" default:"marketplace-events"`
	StreamMaxLen int64         `envconfig:"TRADEPOST_OUTBOX_STREAM_MAXLEN" default:"100000"`
	BatchSize    int           `envconfig:"TRADEPOST_OUTBOX_BATCH_SIZE" default:"50"`
	PollInterval time.Duration `envconfig:"TRADEPOST_OUTBOX_POLL_INTERVAL" default:"500ms"`
	MaxAttempts  int           `envconfig:"TRADEPOST_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention    time.Duration `envconfig:"TRADEPOST_OUTBOX_RETENTION" default:"720h"`
	PruneBatch   int           `envconfig:"TRADEPOST_OUTBOX_PRUNE_BATCH" default:"1000"`
}

func (o OutboxConfig) validate(ps PubSubConfig) error {
	switch strings.ToLower(o.Transport) {
	case "", OutboxTransportRedis:
		return nil
	case OutboxTransportPubSub:
		if strings.TrimSpace(ps.ProjectID) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvGCPProjectID, EnvOutboxTransport, OutboxTransportPubSub)
		}
		if strings.TrimSpace(ps.Topic) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvPubSubTopic, EnvOutboxTransport, OutboxTransportPubSub)
		}
		return nil
	default:
		return fmt.Errorf("%s must be %s or %s, got %q", EnvOutboxTransport, OutboxTransportRedis, OutboxTransportPubSub, o.Transport)
	}
}

// TransportName is the configured transport, lower-cased, defaulting to redis.
func (o OutboxConfig) TransportName() string {
	if t := strings.ToLower(strings.TrimSpace(o.Transport)); t != "" {
		return t
	}
	return OutboxTransportRedis
}

// PubSubConfig addresses the topic the outbox relay publishes to when the
// pubsub transport is selected.
type PubSubConfig struct {
	ProjectID string `envconfig:"TRADEPOST_GCP_PROJECT_ID"`
	Topic     string `envconfig:"TRADEPOST_PUBSUB_TOPIC" default:"marketplace-events"`
	// OrderByAggregate keeps the events of one aggregate in order.
	OrderByAggregate bool `envconfig:"TRADEPOST_PUBSUB_ORDERED" default:"true"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if strings.EqualFold(db.Driver, DriverSQLite) {
		db.DSN = "file:tradepost.db?cache=shared"
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
