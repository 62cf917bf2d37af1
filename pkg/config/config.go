package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Ledger backend selectors.
const (
	LedgerBackendPostgres = "postgres"
	LedgerBackendFile     = "file"
)

// Session store selectors.
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string
	Timezone  string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	Ledger    LedgerConfig
	Sessions  SessionConfig
	Directory DirectoryConfig
	Transport TransportConfig
	Queue     QueueConfig
	Reports   ReportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig secures the gateway endpoints the transport calls.
type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// LedgerConfig selects and tunes the attendance store backend.
type LedgerConfig struct {
	Backend        string
	DataDir        string
	StorageTimeout time.Duration
}

// SessionConfig selects the per-operator session store backend.
type SessionConfig struct {
	Backend string
	TTL     time.Duration
}

// DirectoryConfig points at the static roster/schedule/admin files.
type DirectoryConfig struct {
	RosterPath   string
	SchedulePath string
	AdminsPath   string
}

// TransportConfig describes the outbound delivery endpoint.
type TransportConfig struct {
	SendURL string
	Token   string
	Timeout time.Duration
}

// QueueConfig tunes the inbound update worker pool.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// ReportsConfig configures absence summary exports.
type ReportsConfig struct {
	Enabled    bool
	StorageDir string
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
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.Timezone = v.GetString("TIMEZONE")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 0),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Ledger = LedgerConfig{
		Backend:        v.GetString("LEDGER_BACKEND"),
		DataDir:        v.GetString("LEDGER_DATA_DIR"),
		StorageTimeout: parseDuration(v.GetString("LEDGER_STORAGE_TIMEOUT"), 5*time.Second),
	}

	cfg.Sessions = SessionConfig{
		Backend: v.GetString("SESSION_BACKEND"),
		TTL:     parseDuration(v.GetString("SESSION_TTL"), 12*time.Hour),
	}

	cfg.Directory = DirectoryConfig{
		RosterPath:   v.GetString("ROSTER_PATH"),
		SchedulePath: v.GetString("SCHEDULE_PATH"),
		AdminsPath:   v.GetString("ADMINS_PATH"),
	}

	cfg.Transport = TransportConfig{
		SendURL: v.GetString("TRANSPORT_SEND_URL"),
		Token:   v.GetString("TRANSPORT_TOKEN"),
		Timeout: parseDuration(v.GetString("TRANSPORT_TIMEOUT"), 10*time.Second),
	}

	cfg.Queue = QueueConfig{
		Workers:    v.GetInt("QUEUE_WORKERS"),
		BufferSize: v.GetInt("QUEUE_BUFFER_SIZE"),
		MaxRetries: v.GetInt("QUEUE_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("QUEUE_RETRY_DELAY"), time.Second),
	}

	cfg.Reports = ReportsConfig{
		Enabled:    v.GetBool("ENABLE_REPORTS"),
		StorageDir: v.GetString("REPORTS_STORAGE_DIR"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("TIMEZONE", "Asia/Tashkent")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "davomat")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "0")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LEDGER_BACKEND", LedgerBackendFile)
	v.SetDefault("LEDGER_DATA_DIR", "./data")
	v.SetDefault("LEDGER_STORAGE_TIMEOUT", "5s")

	v.SetDefault("SESSION_BACKEND", SessionBackendMemory)
	v.SetDefault("SESSION_TTL", "12h")

	v.SetDefault("ROSTER_PATH", "./students.json")
	v.SetDefault("SCHEDULE_PATH", "./schedules.json")
	v.SetDefault("ADMINS_PATH", "./admins.json")

	v.SetDefault("TRANSPORT_SEND_URL", "http://localhost:9000/send")
	v.SetDefault("TRANSPORT_TOKEN", "")
	v.SetDefault("TRANSPORT_TIMEOUT", "10s")

	v.SetDefault("QUEUE_WORKERS", 4)
	v.SetDefault("QUEUE_BUFFER_SIZE", 64)
	v.SetDefault("QUEUE_MAX_RETRIES", 3)
	v.SetDefault("QUEUE_RETRY_DELAY", "1s")

	v.SetDefault("ENABLE_REPORTS", true)
	v.SetDefault("REPORTS_STORAGE_DIR", "./exports")
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
