package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/shop/internal/adapter/auth"
	"github.com/rl1809/shop/internal/adapter/messaging"
	"github.com/rl1809/shop/internal/adapter/storage"
	"github.com/rl1809/shop/internal/config"
	"github.com/rl1809/shop/internal/core/service"
	"github.com/rl1809/shop/internal/port"
)

// Infrastructure holds the connections and services shared by the binaries.
type Infrastructure struct {
	Config *config.Config
	Logger *zap.Logger

	DB        port.DatabaseRepository
	Cache     port.CacheRepository
	Publisher port.EventPublisher
	Tokens    *auth.TokenIssuer

	Orders   *service.OrderService
	Catalog  *service.CatalogService
	Accounts *service.AccountService
	Reports  *service.ReportService

	mysql   *storage.MySQLAdapter
	closers []func() error
}

// NewInfrastructure connects to the configured store. Redis and Kafka are
// optional: an empty address leaves deduplication or publishing disabled.
func NewInfrastructure(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Infrastructure, error) {
	infra := &Infrastructure{Config: cfg, Logger: logger}

	if err := infra.setupStore(ctx); err != nil {
		infra.Close()
		return nil, err
	}
	if err := infra.setupCache(ctx); err != nil {
		infra.Close()
		return nil, err
	}
	infra.setupPublisher()

	infra.Tokens = auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	infra.Orders = service.NewOrderService(infra.DB, infra.Cache, infra.Publisher, logger.Named("orders"))
	infra.Catalog = service.NewCatalogService(infra.DB, logger.Named("catalog"))
	infra.Accounts = service.NewAccountService(infra.DB, auth.NewBcryptHasher(cfg.Auth.BcryptCost), logger.Named("accounts"))
	infra.Reports = service.NewReportService(infra.DB)

	return infra, nil
}

func (infra *Infrastructure) setupStore(ctx context.Context) error {
	if infra.Config.Store == config.StoreMemory {
		infra.DB = storage.NewMemoryAdapter()
		infra.Logger.Warn("using in-memory store, data is lost on exit")
		return nil
	}

	db, err := sql.Open("mysql", infra.Config.MySQL.DSN)
	if err != nil {
		return fmt.Errorf("failed to open mysql: %w", err)
	}
	db.SetMaxOpenConns(infra.Config.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(infra.Config.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	infra.closers = append(infra.closers, db.Close)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping mysql: %w", err)
	}
	infra.Logger.Info("connected to mysql")

	infra.mysql = storage.NewMySQLAdapter(db)
	infra.DB = infra.mysql
	return nil
}

func (infra *Infrastructure) setupCache(ctx context.Context) error {
	if infra.Config.Redis.Addr == "" {
		infra.Logger.Info("redis not configured, request deduplication disabled")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     infra.Config.Redis.Addr,
		PoolSize: infra.Config.Redis.PoolSize,
	})
	infra.closers = append(infra.closers, rdb.Close)

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	infra.Logger.Info("connected to redis", zap.String("addr", infra.Config.Redis.Addr))

	infra.Cache = storage.NewRedisAdapter(rdb)
	return nil
}

func (infra *Infrastructure) setupPublisher() {
	if len(infra.Config.Kafka.Brokers) == 0 {
		infra.Logger.Info("kafka not configured, order events disabled")
		return
	}

	publisher := messaging.NewKafkaPublisher(infra.Config.Kafka.Brokers, infra.Config.Kafka.Topic, infra.Logger.Named("kafka"))
	infra.closers = append(infra.closers, publisher.Close)
	infra.Publisher = publisher
	infra.Logger.Info("kafka publisher ready", zap.Strings("brokers", infra.Config.Kafka.Brokers))
}

// Migrate creates the schema. It is a no-op for the in-memory store.
func (infra *Infrastructure) Migrate(ctx context.Context) error {
	if infra.mysql == nil {
		return nil
	}
	if err := infra.mysql.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	infra.Logger.Info("schema migrated")
	return nil
}

// Close releases connections in reverse order of creation.
func (infra *Infrastructure) Close() error {
	var err error
	for i := len(infra.closers) - 1; i >= 0; i-- {
		err = errors.Join(err, infra.closers[i]())
	}
	infra.closers = nil
	return err
}
