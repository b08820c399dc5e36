package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config is loaded once at startup and passed by value or pointer to every
// component constructor. Nothing mutates it after Load returns.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	GCP       GCPConfig
	PubSub    PubSubConfig
	Outbox    OutboxConfig
	Eventing  EventingConfig
	Storyblok StoryblokConfig
	Images    ImagesConfig
	Commerce  CommerceConfig
	Sync      SyncConfig
	Jobs      JobsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations that envconfig cannot express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(errs))
			for _, fe := range errs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"SBSYNC_APP_ENV" required:"true" validate:"oneof=dev test staging prod"`
	Port         string `envconfig:"SBSYNC_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"SBSYNC_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"SBSYNC_LOG_FORMAT" default:"json" validate:"oneof=json console"`
	LogWarnStack bool   `envconfig:"SBSYNC_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"SBSYNC_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"SBSYNC_DB_DSN"`

	LegacyHost     string `envconfig:"SBSYNC_DB_HOST"`
	LegacyPort     int    `envconfig:"SBSYNC_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SBSYNC_DB_USER"`
	LegacyPassword string `envconfig:"SBSYNC_DB_PASSWORD"`
	LegacyName     string `envconfig:"SBSYNC_DB_NAME"`
	LegacySSLMode  string `envconfig:"SBSYNC_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SBSYNC_DB_MAX_OPEN_CONNS" default:"10" validate:"gte=0"`
	MaxIdleConns    int           `envconfig:"SBSYNC_DB_MAX_IDLE_CONNS" default:"5" validate:"gte=0"`
	ConnMaxLifetime time.Duration `envconfig:"SBSYNC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SBSYNC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"SBSYNC_DB_SLOW_QUERY" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SBSYNC_REDIS_URL"`
	Address      string        `envconfig:"SBSYNC_REDIS_ADDR"`
	Password     string        `envconfig:"SBSYNC_REDIS_PASSWORD"`
	DB           int           `envconfig:"SBSYNC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SBSYNC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SBSYNC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SBSYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SBSYNC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SBSYNC_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"SBSYNC_REDIS_KEY_PREFIX" default:"sbsync"`
}

// JWTConfig verifies bearer tokens presented to the admin API.
type JWTConfig struct {
	Secret            string `envconfig:"SBSYNC_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SBSYNC_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SBSYNC_JWT_EXPIRATION_MINUTES" default:"60" validate:"gt=0"`
	AdminRole         string `envconfig:"SBSYNC_JWT_ADMIN_ROLE" default:"admin"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"SBSYNC_CORS_ALLOWED_ORIGINS" default:"http://localhost:9000"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"SBSYNC_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON string `envconfig:"SBSYNC_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	SyncTopic        string `envconfig:"SBSYNC_PUBSUB_SYNC_TOPIC" required:"true"`
	SyncSubscription string `envconfig:"SBSYNC_PUBSUB_SYNC_SUBSCRIPTION" required:"true"`
	MaxOutstanding   int    `envconfig:"SBSYNC_PUBSUB_MAX_OUTSTANDING" default:"4" validate:"gt=0"`
	// Ordering publishes with the aggregate id as ordering key so events for
	// one product arrive in commit order on ordered subscriptions.
	Ordering bool `envconfig:"SBSYNC_PUBSUB_ORDERING" default:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SBSYNC_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SBSYNC_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SBSYNC_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"SBSYNC_EVENTING_IDEMPOTENCY_TTL" default:"72h"`
}

// StoryblokConfig carries the plugin options recognized by the sync engine.
type StoryblokConfig struct {
	AccessToken                string        `envconfig:"SBSYNC_STORYBLOK_ACCESS_TOKEN" required:"true"`
	PersonalAccessToken        string        `envconfig:"SBSYNC_STORYBLOK_PERSONAL_ACCESS_TOKEN" required:"true"`
	SpaceID                    int64         `envconfig:"SBSYNC_STORYBLOK_SPACE_ID" required:"true" validate:"gt=0"`
	Region                     string        `envconfig:"SBSYNC_STORYBLOK_REGION" default:"eu" validate:"oneof=eu us ca ap cn"`
	Version                    string        `envconfig:"SBSYNC_STORYBLOK_VERSION" default:"draft" validate:"oneof=draft published"`
	ProductsFolderID           int64         `envconfig:"SBSYNC_STORYBLOK_PRODUCTS_FOLDER_ID" required:"true" validate:"gt=0"`
	ProductsFolderName         string        `envconfig:"SBSYNC_STORYBLOK_PRODUCTS_FOLDER_NAME" required:"true" validate:"required"`
	DeleteProductOnStoryDelete bool          `envconfig:"SBSYNC_STORYBLOK_DELETE_PRODUCT_ON_STORY_DELETE" default:"false"`
	WebhookSecret              string        `envconfig:"SBSYNC_STORYBLOK_WEBHOOK_SECRET"`
	HTTPTimeout                time.Duration `envconfig:"SBSYNC_STORYBLOK_HTTP_TIMEOUT" default:"20s"`
	RateLimitRPS               float64       `envconfig:"SBSYNC_STORYBLOK_RATE_LIMIT_RPS" default:"6" validate:"gt=0"`
	RateLimitBurst             int           `envconfig:"SBSYNC_STORYBLOK_RATE_LIMIT_BURST" default:"6" validate:"gt=0"`
	RetryMax                   int           `envconfig:"SBSYNC_STORYBLOK_RETRY_MAX" default:"3" validate:"gte=0"`
	FolderLockTTL              time.Duration `envconfig:"SBSYNC_STORYBLOK_FOLDER_LOCK_TTL" default:"30s"`
	WebhookRateLimit           int           `envconfig:"SBSYNC_STORYBLOK_WEBHOOK_RATE_LIMIT" default:"120" validate:"gte=0"`
	WebhookRateWindow          time.Duration `envconfig:"SBSYNC_STORYBLOK_WEBHOOK_RATE_WINDOW" default:"1m"`
}

// ImagesConfig holds image optimization and upload settings.
type ImagesConfig struct {
	Width             int           `envconfig:"SBSYNC_IMAGES_WIDTH" default:"800" validate:"gt=0"`
	Quality           int           `envconfig:"SBSYNC_IMAGES_QUALITY" default:"80" validate:"min=1,max=100"`
	URLTemplate       string        `envconfig:"SBSYNC_IMAGES_URL_TEMPLATE"`
	FetchTimeout      time.Duration `envconfig:"SBSYNC_IMAGES_FETCH_TIMEOUT" default:"30s"`
	MaxBytes          int64         `envconfig:"SBSYNC_IMAGES_MAX_BYTES" default:"26214400" validate:"gt=0"`
	UploadConcurrency int           `envconfig:"SBSYNC_IMAGES_UPLOAD_CONCURRENCY" default:"4" validate:"gt=0"`
}

// CommerceConfig points at the Medusa admin API.
type CommerceConfig struct {
	BaseURL  string        `envconfig:"SBSYNC_COMMERCE_BASE_URL" required:"true" validate:"url"`
	APIKey   string        `envconfig:"SBSYNC_COMMERCE_API_KEY" required:"true"`
	Timeout  time.Duration `envconfig:"SBSYNC_COMMERCE_TIMEOUT" default:"15s"`
	PageSize int           `envconfig:"SBSYNC_COMMERCE_PAGE_SIZE" default:"100" validate:"min=1,max=500"`
}

// SyncConfig bounds each reconciliation step.
type SyncConfig struct {
	StepTimeout            time.Duration `envconfig:"SBSYNC_SYNC_STEP_TIMEOUT" default:"2m"`
	StepRetries            uint64        `envconfig:"SBSYNC_SYNC_STEP_RETRIES" default:"3"`
	BackoffBase            time.Duration `envconfig:"SBSYNC_SYNC_BACKOFF_BASE" default:"500ms"`
	BackoffCap             time.Duration `envconfig:"SBSYNC_SYNC_BACKOFF_CAP" default:"10s"`
	VariantRequeueAttempts int           `envconfig:"SBSYNC_SYNC_VARIANT_REQUEUE_ATTEMPTS" default:"5" validate:"gte=0"`
}

// JobsConfig schedules the maintenance worker.
type JobsConfig struct {
	Interval            time.Duration `envconfig:"SBSYNC_JOBS_INTERVAL" default:"24h"`
	LockTTL             time.Duration `envconfig:"SBSYNC_JOBS_LOCK_TTL" default:"25h"`
	OutboxRetentionDays int           `envconfig:"SBSYNC_JOBS_OUTBOX_RETENTION_DAYS" default:"30" validate:"gt=0"`
	DLQRetentionDays    int           `envconfig:"SBSYNC_JOBS_DLQ_RETENTION_DAYS" default:"90" validate:"gt=0"`
	PruneLinks          bool          `envconfig:"SBSYNC_JOBS_PRUNE_LINKS" default:"true"`
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
