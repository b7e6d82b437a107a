package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sauat/cmd/identity"
	"sauat/cmd/internal/auth/session"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Refresh store backends accepted in SAUAT_REFRESH_STORE.
const (
	RefreshStorePostgres = "postgres"
	RefreshStoreRedis    = "redis"
	RefreshStoreMemory   = "memory"
)

// backends holds the persistence the app owns and must close on shutdown.
type backends struct {
	users   identity.Store
	refresh session.Store

	pool *pgxpool.Pool
	rdb  *redis.Client
}

func (b *backends) Close() {
	if b.rdb != nil {
		_ = b.rdb.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}

// openBackends decides between Postgres-backed persistence and the in-memory dev stores.
func openBackends(ctx context.Context, cfg Config, log *slog.Logger) (_ *backends, err error) {
	b := &backends{}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	if cfg.DatabaseURL == "" {
		log.Warn("db.disabled.inmemory_store")
		b.users = identity.NewMemoryStore()
	} else {
		if b.pool, err = NewDBPool(ctx, cfg); err != nil {
			return nil, err
		}
		if b.users, err = identity.NewPostgresStore(b.pool); err != nil {
			return nil, err
		}
		log.Info("db.enabled.postgres_store", "auto_migrate", cfg.DBAutoMigrate)
	}

	kind := strings.ToLower(strings.TrimSpace(cfg.RefreshStore))
	if kind == "" {
		kind = RefreshStoreMemory
		if b.pool != nil {
			kind = RefreshStorePostgres
		}
	}

	switch kind {
	case RefreshStorePostgres:
		if b.pool == nil {
			return nil, fmt.Errorf("%w: SAUAT_REFRESH_STORE=postgres requires SAUAT_DATABASE_URL", session.ErrConfig)
		}
		if b.refresh, err = session.NewPostgresStore(b.pool); err != nil {
			return nil, err
		}

	case RefreshStoreRedis:
		if b.rdb, err = newRedisClient(ctx, cfg.RedisURL); err != nil {
			return nil, err
		}
		b.refresh = session.NewRedisStore(b.rdb, "")

	case RefreshStoreMemory:
		b.refresh = session.NewMemoryStore()

	default:
		return nil, fmt.Errorf("%w: unknown SAUAT_REFRESH_STORE=%q", session.ErrConfig, cfg.RefreshStore)
	}

	log.Info("refresh.store.selected", "backend", kind)
	return b, nil
}

func newRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("%w: SAUAT_REFRESH_STORE=redis requires SAUAT_REDIS_URL", session.ErrConfig)
	}
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: SAUAT_REDIS_URL: %v", session.ErrConfig, err)
	}

	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
