package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Reservation  ReservationConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Reservation.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env             string        `envconfig:"DORMSTAY_APP_ENV" required:"true"`
	Port            string        `envconfig:"DORMSTAY_APP_PORT" default:"8080"`
	LogLevel        string        `envconfig:"DORMSTAY_LOG_LEVEL" default:"info"`
	LogWarnStack    bool          `envconfig:"DORMSTAY_LOG_WARN_STACK" default:"false"`
	CORSOrigins     []string      `envconfig:"DORMSTAY_CORS_ORIGINS"`
	ShutdownTimeout time.Duration `envconfig:"DORMSTAY_APP_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"DORMSTAY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DORMSTAY_DB_DSN"`
	Driver string `envconfig:"DORMSTAY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DORMSTAY_DB_HOST"`
	LegacyPort     int    `envconfig:"DORMSTAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DORMSTAY_DB_USER"`
	LegacyPassword string `envconfig:"DORMSTAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"DORMSTAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"DORMSTAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DORMSTAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DORMSTAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DORMSTAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DORMSTAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DORMSTAY_REDIS_URL"`
	Address      string        `envconfig:"DORMSTAY_REDIS_ADDR"`
	Password     string        `envconfig:"DORMSTAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"DORMSTAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DORMSTAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DORMSTAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DORMSTAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DORMSTAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DORMSTAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"DORMSTAY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DORMSTAY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"DORMSTAY_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite       bool   `envconfig:"DORMSTAY_USE_SQLITE" default:"false"`
	AutoMigrate     bool   `envconfig:"DORMSTAY_AUTO_MIGRATE" default:"false"`
	RoomLockBackend string `envconfig:"DORMSTAY_ROOM_LOCK_BACKEND" default:"local"`
}

// ReservationConfig holds the booking window and scheduling offsets.
type ReservationConfig struct {
	BookingHorizonMonths int           `envconfig:"DORMSTAY_BOOKING_HORIZON_MONTHS" default:"3"`
	ReminderOffset       time.Duration `envconfig:"DORMSTAY_REMINDER_OFFSET" default:"24h"`
	RiskOffset           time.Duration `envconfig:"DORMSTAY_RISK_OFFSET" default:"48h"`
	MaxExtensionDays     int           `envconfig:"DORMSTAY_MAX_EXTENSION_DAYS" default:"30"`
	RoomLockTTL          time.Duration `envconfig:"DORMSTAY_ROOM_LOCK_TTL" default:"10s"`
	RoomLockWait         time.Duration `envconfig:"DORMSTAY_ROOM_LOCK_WAIT" default:"5s"`
}

func (r ReservationConfig) validate() error {
	if r.BookingHorizonMonths <= 0 {
		return fmt.Errorf("%s must be positive", EnvBookingHorizonMonths)
	}
	if r.ReminderOffset <= 0 || r.RiskOffset <= 0 {
		return fmt.Errorf("reminder and risk offsets must be positive")
	}
	if r.RiskOffset < r.ReminderOffset {
		return fmt.Errorf("%s must not be shorter than %s", EnvRiskOffset, EnvReminderOffset)
	}
	return nil
}

type CronConfig struct {
	SweepInterval       time.Duration `envconfig:"DORMSTAY_CRON_SWEEP_INTERVAL" default:"15m"`
	SweepBatchSize      int           `envconfig:"DORMSTAY_CRON_SWEEP_BATCH_SIZE" default:"200"`
	LockTTL             time.Duration `envconfig:"DORMSTAY_CRON_LOCK_TTL" default:"10m"`
	DriftRepair         bool          `envconfig:"DORMSTAY_CRON_DRIFT_REPAIR" default:"true"`
	DriftRepairInterval time.Duration `envconfig:"DORMSTAY_CRON_DRIFT_REPAIR_INTERVAL" default:"6h"`
	MetricsPort         string        `envconfig:"DORMSTAY_CRON_METRICS_PORT" default:"9102"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"DORMSTAY_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	ReminderTopic string `envconfig:"DORMSTAY_PUBSUB_REMINDER_TOPIC"`
}

// Enabled reports whether reminders should be published to Pub/Sub.
func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.ReminderTopic) != ""
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = defaultSQLiteDSN
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
