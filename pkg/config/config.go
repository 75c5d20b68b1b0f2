package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Store         StoreConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Certification CertificationConfig
	Cache         CacheConfig
	Events        EventsConfig
}

type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// StoreConfig selects where course state lives.
type StoreConfig struct {
	Driver      string
	AutoMigrate bool
}

// RedisConfig selects the Redis instance backing the view cache and event channel.
// URL, when set, takes precedence over the discrete fields.
type RedisConfig struct {
	Enabled   bool
	URL       string
	Host      string
	Port      int
	Password  string
	DB        int
	PoolSize  int
	OpTimeout time.Duration
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CertificationConfig holds the course quota knobs and collection metadata.
type CertificationConfig struct {
	MaxEvaluatorsPerCourse uint64
	MaxPlacesPerCourse     uint64
	BaseCourseFee          uint64
	ContractURI            string
	BootstrapAdmin         string
}

// CacheConfig governs caching of course read views.
type CacheConfig struct {
	Enabled   bool
	TTL       time.Duration
	Namespace string
}

// EventsConfig tunes the post-commit notification dispatcher.
type EventsConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	MaxDelay   time.Duration
	Channel    string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Driver:       v.GetString("DB_DRIVER"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Store = StoreConfig{
		Driver:      strings.ToLower(v.GetString("STORE_DRIVER")),
		AutoMigrate: v.GetBool("STORE_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:   v.GetBool("REDIS_ENABLED"),
		URL:       v.GetString("REDIS_URL"),
		Host:      v.GetString("REDIS_HOST"),
		Port:      v.GetInt("REDIS_PORT"),
		Password:  v.GetString("REDIS_PASSWORD"),
		DB:        v.GetInt("REDIS_DB"),
		PoolSize:  v.GetInt("REDIS_POOL_SIZE"),
		OpTimeout: parseDuration(v.GetString("REDIS_OP_TIMEOUT"), 500*time.Millisecond),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Certification = CertificationConfig{
		MaxEvaluatorsPerCourse: v.GetUint64("MAX_EVALUATORS_PER_COURSE"),
		MaxPlacesPerCourse:     v.GetUint64("MAX_PLACES_PER_COURSE"),
		BaseCourseFee:          v.GetUint64("BASE_COURSE_FEE"),
		ContractURI:            v.GetString("CONTRACT_URI"),
		BootstrapAdmin:         v.GetString("BOOTSTRAP_ADMIN_ADDRESS"),
	}

	cfg.Cache = CacheConfig{
		Enabled:   v.GetBool("ENABLE_COURSE_CACHE"),
		TTL:       parseDuration(v.GetString("COURSE_CACHE_TTL"), time.Minute),
		Namespace: v.GetString("COURSE_CACHE_NAMESPACE"),
	}

	cfg.Events = EventsConfig{
		Workers:    v.GetInt("EVENT_WORKERS"),
		BufferSize: v.GetInt("EVENT_BUFFER"),
		MaxRetries: v.GetInt("EVENT_RETRIES"),
		RetryDelay: parseDuration(v.GetString("EVENT_RETRY_DELAY"), time.Second),
		MaxDelay:   parseDuration(v.GetString("EVENT_MAX_RETRY_DELAY"), 30*time.Second),
		Channel:    v.GetString("EVENT_CHANNEL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const devJWTSecret = "dev_secret"

// Validate reports every setting the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case StoreMemory, StorePostgres:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of %s, %s", c.Store.Driver, StoreMemory, StorePostgres))
	}
	if c.Certification.MaxEvaluatorsPerCourse == 0 {
		errs = append(errs, errors.New("MAX_EVALUATORS_PER_COURSE must be at least 1"))
	}
	if c.Certification.MaxPlacesPerCourse == 0 {
		errs = append(errs, errors.New("MAX_PLACES_PER_COURSE must be at least 1"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Env == EnvProduction && c.JWT.Secret == devJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET must be overridden in production"))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "course_certs")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("STORE_DRIVER", StoreMemory)
	v.SetDefault("STORE_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)

	v.SetDefault("JWT_SECRET", devJWTSecret)
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "course-cert-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MAX_EVALUATORS_PER_COURSE", 5)
	v.SetDefault("MAX_PLACES_PER_COURSE", 100)
	v.SetDefault("BASE_COURSE_FEE", uint64(10_000_000_000_000_000))
	v.SetDefault("CONTRACT_URI", "")
	v.SetDefault("BOOTSTRAP_ADMIN_ADDRESS", "")

	v.SetDefault("ENABLE_COURSE_CACHE", false)
	v.SetDefault("COURSE_CACHE_TTL", "1m")
	v.SetDefault("COURSE_CACHE_NAMESPACE", "course-cert")

	v.SetDefault("EVENT_WORKERS", 1)
	v.SetDefault("EVENT_BUFFER", 64)
	v.SetDefault("EVENT_RETRIES", 3)
	v.SetDefault("EVENT_RETRY_DELAY", "1s")
	v.SetDefault("EVENT_MAX_RETRY_DELAY", "30s")
	v.SetDefault("EVENT_CHANNEL", "course-cert-events")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
