package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Rawan10101/Carevo/internal/config"
	"github.com/Rawan10101/Carevo/internal/db"
	"github.com/Rawan10101/Carevo/internal/docstore"
	redisclient "github.com/Rawan10101/Carevo/internal/redis"
)

const connectTimeout = 10 * time.Second

// OpenStore connects the document store selected by cfg.StoreBackend. The
// returned close func releases the underlying connections.
func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (docstore.Store, func(), error) {
	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN, db.PoolConfig{MaxConns: cfg.PostgresMaxConns})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connection: %w", err)
		}
		if err := db.Migrate(connCtx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("connected to postgres", zap.Int32("max_conns", pool.Config().MaxConns))
		return docstore.NewPgStore(pool), pool.Close, nil

	case config.BackendRedis:
		rdb, err := redisclient.NewRedisClient(connCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("redis connection: %w", err)
		}
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
		closeFn := func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", zap.Error(err))
			}
		}
		return docstore.NewRedisStore(rdb), closeFn, nil

	case config.BackendMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		return docstore.NewMemoryStore(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
