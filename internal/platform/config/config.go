package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	MetricsAddr    string
	RequestTimeout time.Duration
}

// Log selects the slog handler.
type Log struct {
	Level  string
	Format string
}

// Store selects the contact store backend.
type Store struct {
	Backend   string
	TxTimeout time.Duration
}

// Database configures the Postgres connection pool.
type Database struct {
	Driver       string
	URL          string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// DSN returns DATABASE_URL when set, otherwise a URL built from the parts.
func (d Database) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

// SQLite configures the embedded database file.
type SQLite struct {
	Path string
}

// RedisConfig configures the identity view cache. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CacheTTL     time.Duration
}

// Kafka configures contact event publishing. No brokers disables it.
type Kafka struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// Config is the full process configuration.
type Config struct {
	Server   Server
	Log      Log
	Store    Store
	Database Database
	SQLite   SQLite
	Redis    RedisConfig
	Kafka    Kafka
	PIIKey   string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("store_backend", BackendMemory)
	v.SetDefault("tx_timeout", "5s")
	v.SetDefault("db_driver", "pgx")
	v.SetDefault("database_url", "")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_password", "postgres")
	v.SetDefault("db_name", "contacts")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("db_max_open_conns", 25)
	v.SetDefault("db_max_idle_conns", 5)
	v.SetDefault("sqlite_path", "./contacts.db")
	v.SetDefault("redis_url", "")
	v.SetDefault("redis_pool_size", 10)
	v.SetDefault("redis_min_idle_conns", 2)
	v.SetDefault("redis_dial_timeout", "2s")
	v.SetDefault("redis_read_timeout", "500ms")
	v.SetDefault("redis_write_timeout", "500ms")
	v.SetDefault("cache_ttl", "5m")
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", "contact-events")
	v.SetDefault("kafka_client_id", "reconcile")
	v.SetDefault("pii_key", "dev-pii-key-change-in-production")
}

// Load reads configuration from the environment. Values in envFile (when it
// exists) are loaded first and never override variables already set.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := Config{
		Server: Server{
			Addr:           v.GetString("addr"),
			MetricsAddr:    v.GetString("metrics_addr"),
			RequestTimeout: v.GetDuration("request_timeout"),
		},
		Log: Log{
			Level:  strings.ToLower(v.GetString("log_level")),
			Format: strings.ToLower(v.GetString("log_format")),
		},
		Store: Store{
			Backend:   strings.ToLower(v.GetString("store_backend")),
			TxTimeout: v.GetDuration("tx_timeout"),
		},
		Database: Database{
			Driver:       v.GetString("db_driver"),
			URL:          v.GetString("database_url"),
			Host:         v.GetString("db_host"),
			Port:         v.GetInt("db_port"),
			User:         v.GetString("db_user"),
			Password:     v.GetString("db_password"),
			Name:         v.GetString("db_name"),
			SSLMode:      v.GetString("db_sslmode"),
			MaxOpenConns: v.GetInt("db_max_open_conns"),
			MaxIdleConns: v.GetInt("db_max_idle_conns"),
		},
		SQLite: SQLite{Path: v.GetString("sqlite_path")},
		Redis: RedisConfig{
			URL:          v.GetString("redis_url"),
			PoolSize:     v.GetInt("redis_pool_size"),
			MinIdleConns: v.GetInt("redis_min_idle_conns"),
			DialTimeout:  v.GetDuration("redis_dial_timeout"),
			ReadTimeout:  v.GetDuration("redis_read_timeout"),
			WriteTimeout: v.GetDuration("redis_write_timeout"),
			CacheTTL:     v.GetDuration("cache_ttl"),
		},
		Kafka: Kafka{
			Brokers:  splitList(v.GetString("kafka_brokers")),
			Topic:    v.GetString("kafka_topic"),
			ClientID: v.GetString("kafka_client_id"),
		},
		PIIKey: v.GetString("pii_key"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendMemory, BackendPostgres, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}
	if c.Store.Backend == BackendPostgres && c.Database.Driver != "pgx" && c.Database.Driver != "postgres" {
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.Log.Format))
	}
	if c.Store.TxTimeout <= 0 {
		errs = append(errs, errors.New("TX_TIMEOUT must be positive"))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
