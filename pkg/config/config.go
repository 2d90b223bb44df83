// Package config loads service settings from MKT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Commission   CommissionConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

// Load reads MKT_* variables and reports every invalid setting at once.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	_, rateErr := c.Commission.ParsedRate()
	err := multierr.Combine(c.DB.ensureDSN(c.FeatureFlags.UseSQLite), rateErr)
	if c.Outbox.MaxAttempts < 1 {
		err = multierr.Append(err, fmt.Errorf("MKT_OUTBOX_MAX_ATTEMPTS must be at least 1, got %d", c.Outbox.MaxAttempts))
	}
	if c.Cron.Interval <= 0 || c.Cron.LockTTL <= 0 {
		err = multierr.Append(err, errors.New("MKT_CRON_INTERVAL and MKT_CRON_LOCK_TTL must be positive"))
	}
	return err
}

type AppConfig struct {
	Env          string `envconfig:"MKT_APP_ENV" required:"true"`
	Port         string `envconfig:"MKT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MKT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MKT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MKT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MKT_DB_DSN"`
	Driver string `envconfig:"MKT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MKT_DB_HOST"`
	LegacyPort     int    `envconfig:"MKT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MKT_DB_USER"`
	LegacyPassword string `envconfig:"MKT_DB_PASSWORD"`
	LegacyName     string `envconfig:"MKT_DB_NAME"`
	LegacySSLMode  string `envconfig:"MKT_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"MKT_DB_SQLITE_PATH" default:"commissions.db"`

	MaxOpenConns    int           `envconfig:"MKT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MKT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MKT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MKT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"MKT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MKT_REDIS_URL"`
	Address      string        `envconfig:"MKT_REDIS_ADDR"`
	Password     string        `envconfig:"MKT_REDIS_PASSWORD"`
	DB           int           `envconfig:"MKT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MKT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MKT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MKT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MKT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MKT_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"MKT_REDIS_KEY_PREFIX" default:"mkt"`
}

// Enabled reports whether a Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"MKT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MKT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MKT_JWT_EXPIRATION_MINUTES" default:"60"`
}

// RateLimitConfig throttles invoice writes per caller. A zero limit disables it.
type RateLimitConfig struct {
	Window     time.Duration `envconfig:"MKT_RATE_LIMIT_WINDOW" default:"1m"`
	WriteLimit int           `envconfig:"MKT_RATE_LIMIT_WRITES" default:"30"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"MKT_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

// CommissionConfig holds the platform fee settings applied to new invoices.
type CommissionConfig struct {
	Rate     string `envconfig:"MKT_COMMISSION_RATE" default:"0.05"`
	Currency string `envconfig:"MKT_COMMISSION_CURRENCY" default:"IDR"`
	// MaxSyncAttempts bounds the optimistic retries of a single invoice sync.
	MaxSyncAttempts int `envconfig:"MKT_COMMISSION_MAX_SYNC_ATTEMPTS" default:"3"`
}

// ParsedRate returns the commission rate as a decimal fraction in [0, 1].
func (c CommissionConfig) ParsedRate() (decimal.Decimal, error) {
	raw := strings.TrimSpace(c.Rate)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%s is required", EnvCommissionRate)
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s: %w", EnvCommissionRate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%s must be between 0 and 1, got %s", EnvCommissionRate, raw)
	}
	// invoices.commission_rate is numeric(6,4); a finer rate would be rounded on insert.
	if !rate.Equal(rate.Truncate(4)) {
		return decimal.Zero, fmt.Errorf("%s allows at most 4 decimal places, got %s", EnvCommissionRate, raw)
	}
	return rate, nil
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MKT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MKT_AUTO_MIGRATE" default:"false"`
	// VerifyProofObjects checks that uploaded proof URLs point at an existing object.
	VerifyProofObjects bool `envconfig:"MKT_VERIFY_PROOF_OBJECTS" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MKT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MKT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MKT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName      string        `envconfig:"MKT_GCS_BUCKET_NAME"`
	ProofPrefix     string        `envconfig:"MKT_GCS_PROOF_PREFIX" default:"payment-proofs"`
	UploadURLExpiry time.Duration `envconfig:"MKT_GCS_UPLOAD_URL_EXPIRY" default:"15m"`
	RequestTimeout  time.Duration `envconfig:"MKT_GCS_REQUEST_TIMEOUT" default:"5s"`
}

// Enabled reports whether proof storage was configured.
func (g GCSConfig) Enabled() bool {
	return strings.TrimSpace(g.BucketName) != ""
}

type PubSubConfig struct {
	InvoiceTopic string `envconfig:"MKT_PUBSUB_INVOICE_TOPIC" default:"invoice-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MKT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MKT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MKT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	// PublishTimeout bounds the wait for a broker acknowledgement.
	PublishTimeout time.Duration `envconfig:"MKT_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
	// MetricsAddr serves /metrics for the relay when set.
	MetricsAddr string `envconfig:"MKT_OUTBOX_METRICS_ADDR"`
}

// CronConfig schedules the invoice sweep and outbox prune jobs.
type CronConfig struct {
	Interval            time.Duration `envconfig:"MKT_CRON_INTERVAL" default:"1h"`
	LockTTL             time.Duration `envconfig:"MKT_CRON_LOCK_TTL" default:"55m"`
	OutboxRetentionDays int           `envconfig:"MKT_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays    int           `envconfig:"MKT_CRON_DLQ_RETENTION_DAYS" default:"90"`
}

// ensureDSN fills DSN from the discrete MKT_DB_* variables when it is unset.
func (db *DBConfig) ensureDSN(useSQLite bool) error {
	switch {
	case useSQLite && db.SQLitePath == "":
		return fmt.Errorf("%s is required when %s is set", EnvDBSQLitePath, EnvUseSQLite)
	case useSQLite, db.DSN != "":
		return nil
	}

	var missing []string
	for env, v := range map[string]string{EnvDBHost: db.LegacyHost, EnvDBUser: db.LegacyUser, EnvDBName: db.LegacyName} {
		if v == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}
	db.DSN = db.legacyDSN()
	return nil
}

func (db *DBConfig) legacyDSN() string {
	user := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		user = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	u := url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   net.JoinHostPort(db.LegacyHost, strconv.Itoa(db.LegacyPort)),
		Path:   db.LegacyName,
	}
	if db.LegacySSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	return u.String()
}
