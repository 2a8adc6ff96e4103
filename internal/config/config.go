package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ServiceName    = "shop"
	ServiceVersion = "0.1.0"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

type Config struct {
	Store  string       `yaml:"store"`
	Server ServerConfig `yaml:"server"`
	MySQL  MySQLConfig  `yaml:"mysql"`
	Redis  RedisConfig  `yaml:"redis"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	Otel   OtelConfig   `yaml:"otel"`
	Auth   AuthConfig   `yaml:"auth"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	HTTPAddr          string        `yaml:"http_addr"`
	GRPCAddr          string        `yaml:"grpc_addr"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type MySQLConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig with an empty Addr disables request deduplication.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	PoolSize int    `yaml:"pool_size"`
}

// KafkaConfig with no brokers disables event publishing.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// OtelConfig with an empty Endpoint disables trace export.
type OtelConfig struct {
	Endpoint string `yaml:"endpoint"`
	URLPath  string `yaml:"url_path"`
	Insecure bool   `yaml:"insecure"`
}

type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	BcryptCost int           `yaml:"bcrypt_cost"`
}

type LogConfig struct {
	Mode string `yaml:"mode"` // production or development
	File string `yaml:"file"`
}

func Default() *Config {
	return &Config{
		Store: StoreMySQL,
		Server: ServerConfig{
			HTTPAddr:          ":8080",
			GRPCAddr:          ":50051",
			RequestTimeout:    5 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		MySQL: MySQLConfig{
			DSN:          "root:root@tcp(localhost:3306)/shop?parseTime=true",
			MaxOpenConns: 50,
			MaxIdleConns: 25,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 100,
		},
		Kafka: KafkaConfig{
			Topic: "orders.placed",
		},
		Otel: OtelConfig{
			URLPath:  "/v1/traces",
			Insecure: true,
		},
		Auth: AuthConfig{
			TokenTTL:   24 * time.Hour,
			BcryptCost: 10,
		},
		Log: LogConfig{
			Mode: "development",
		},
	}
}

// Load reads defaults, then the YAML file at path (if any), then SHOP_*
// environment variables, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg, os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	set("SHOP_STORE", &cfg.Store)
	set("SHOP_HTTP_ADDR", &cfg.Server.HTTPAddr)
	set("SHOP_GRPC_ADDR", &cfg.Server.GRPCAddr)
	set("SHOP_MYSQL_DSN", &cfg.MySQL.DSN)
	set("SHOP_REDIS_ADDR", &cfg.Redis.Addr)
	set("SHOP_OTEL_ENDPOINT", &cfg.Otel.Endpoint)
	set("SHOP_JWT_SECRET", &cfg.Auth.JWTSecret)
	set("SHOP_LOG_MODE", &cfg.Log.Mode)
	set("SHOP_LOG_FILE", &cfg.Log.File)

	if v, ok := lookup("SHOP_KAFKA_BROKERS"); ok {
		cfg.Kafka.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
			}
		}
	}
}

// ErrMissingJWTSecret is returned by RequireJWTSecret.
var ErrMissingJWTSecret = errors.New("auth.jwt_secret (SHOP_JWT_SECRET) is required to serve HTTP")

// RequireJWTSecret reports whether the config can sign tokens for the HTTP API.
// Operator tools never issue tokens and skip it.
func (c *Config) RequireJWTSecret() error {
	if c.Server.HTTPAddr != "" && c.Auth.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Store {
	case StoreMySQL:
		if c.MySQL.DSN == "" {
			errs = append(errs, errors.New("mysql.dsn is required for the mysql store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("store must be %q or %q, got %q", StoreMySQL, StoreMemory, c.Store))
	}

	if c.Server.HTTPAddr == "" && c.Server.GRPCAddr == "" {
		errs = append(errs, errors.New("at least one of server.http_addr and server.grpc_addr is required"))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.request_timeout must be positive"))
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		errs = append(errs, errors.New("server.read_header_timeout must be positive"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Log.Mode != "production" && c.Log.Mode != "development" {
		errs = append(errs, fmt.Errorf("log.mode must be production or development, got %q", c.Log.Mode))
	}

	return errors.Join(errs...)
}
