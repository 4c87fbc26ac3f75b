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
	DB           DBConfig
	Redis        RedisConfig
	Sync         SyncConfig
	Marketplace  MarketplaceConfig
	OrgData      OrgDataConfig
	Mailing      MailingConfig
	Ops          OpsConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Sync.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LS_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"LS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"LS_DB_DSN"`
	Driver string `envconfig:"LS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LS_DB_HOST"`
	LegacyPort     int    `envconfig:"LS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LS_DB_USER"`
	LegacyPassword string `envconfig:"LS_DB_PASSWORD"`
	LegacyName     string `envconfig:"LS_DB_NAME"`
	LegacySSLMode  string `envconfig:"LS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LS_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"LS_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"LS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LS_REDIS_URL"`
	Address      string        `envconfig:"LS_REDIS_ADDR"`
	Password     string        `envconfig:"LS_REDIS_PASSWORD"`
	DB           int           `envconfig:"LS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint is configured at all. The worker
// falls back to an in-process lock when it is not.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type SyncConfig struct {
	FirstRunAt    string        `envconfig:"LS_SYNC_FIRST_RUN_AT"`
	ModifiedSince string        `envconfig:"LS_SYNC_MODIFIED_SINCE"`
	Interval      time.Duration `envconfig:"LS_SYNC_INTERVAL" default:"30m"`
	InitialPoll   time.Duration `envconfig:"LS_SYNC_INITIAL_POLL" default:"60s"`
	SteadyPoll    time.Duration `envconfig:"LS_SYNC_STEADY_POLL" default:"120s"`
	SettleDelay   time.Duration `envconfig:"LS_SYNC_SETTLE_DELAY" default:"10s"`
	ArtifactPath  string        `envconfig:"LS_SYNC_ARTIFACT_PATH" default:"licenses_export.json"`
	LockTTL       time.Duration `envconfig:"LS_SYNC_LOCK_TTL" default:"45m"`
}

func (s SyncConfig) validate() error {
	if _, err := s.FirstRun(time.Now()); err != nil {
		return err
	}
	if _, err := s.StartModifiedSince(); err != nil {
		return err
	}
	return nil
}

// FirstRun returns the first scheduled run time, falling back to now when the
// variable is unset so a fresh deploy starts a cycle immediately.
func (s SyncConfig) FirstRun(now time.Time) (time.Time, error) {
	if strings.TrimSpace(s.FirstRunAt) == "" {
		return now, nil
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(s.FirstRunAt))
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", EnvSyncFirstRunAt, err)
	}
	return ts, nil
}

// StartModifiedSince returns the initial modified-since date. A zero time
// means no override; the scheduler substitutes its far-past default.
func (s SyncConfig) StartModifiedSince() (time.Time, error) {
	if strings.TrimSpace(s.ModifiedSince) == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.DateOnly, strings.TrimSpace(s.ModifiedSince))
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", EnvSyncModifiedSince, err)
	}
	return ts, nil
}

type MarketplaceConfig struct {
	BaseURL     string        `envconfig:"LS_MARKETPLACE_BASE_URL" required:"true"`
	VendorID    string        `envconfig:"LS_MARKETPLACE_VENDOR_ID" required:"true"`
	Username    string        `envconfig:"LS_MARKETPLACE_USER" required:"true"`
	Password    string        `envconfig:"LS_MARKETPLACE_PASSWORD" required:"true"`
	HTTPTimeout time.Duration `envconfig:"LS_MARKETPLACE_HTTP_TIMEOUT" default:"120s"`
}

type OrgDataConfig struct {
	BaseURL     string        `envconfig:"LS_ORGDATA_BASE_URL"`
	APIKey      string        `envconfig:"LS_ORGDATA_API_KEY"`
	HTTPTimeout time.Duration `envconfig:"LS_ORGDATA_HTTP_TIMEOUT" default:"30s"`
	SkipDomains []string      `envconfig:"LS_ORGDATA_SKIP_DOMAINS"`
}

// Enabled reports whether organization enrichment is configured. The sync
// loop runs without it when the provider credentials are absent.
func (o OrgDataConfig) Enabled() bool {
	return o.BaseURL != "" && o.APIKey != ""
}

type MailingConfig struct {
	BaseURL     string        `envconfig:"LS_MAILING_BASE_URL"`
	APIKey      string        `envconfig:"LS_MAILING_API_KEY"`
	ListID      string        `envconfig:"LS_MAILING_LIST_ID"`
	ChunkSize   int           `envconfig:"LS_MAILING_CHUNK_SIZE" default:"500"`
	HTTPTimeout time.Duration `envconfig:"LS_MAILING_HTTP_TIMEOUT" default:"60s"`
}

// Enabled reports whether mailing-list pushes are configured. Entries are
// still recorded locally when they are not.
func (m MailingConfig) Enabled() bool {
	return m.BaseURL != "" && m.APIKey != "" && m.ListID != ""
}

type OpsConfig struct {
	Port string `envconfig:"LS_OPS_PORT" default:"9090"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LS_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
