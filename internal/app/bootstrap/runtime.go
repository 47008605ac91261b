// Package bootstrap builds the runtime dependencies shared by the API and the worker.
package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/trial-booking/internal/config"
	"github.com/wolfman30/trial-booking/internal/conversation"
	"github.com/wolfman30/trial-booking/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// Postgres bundles the pgx pool with a database/sql handle over the same pool.
type Postgres struct {
	Pool *pgxpool.Pool
	DB   *sql.DB
}

// Close releases both handles.
func (p *Postgres) Close() {
	if p == nil {
		return
	}
	_ = p.DB.Close()
	p.Pool.Close()
}

// Ping is used by the health check.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.Pool.Ping(ctx)
}

// ConnectPostgres opens the pool. An empty URL returns nil, nil.
func ConnectPostgres(ctx context.Context, databaseURL string, logger *logging.Logger) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("postgres connected")
	return &Postgres{Pool: pool, DB: stdlib.OpenDBFromPool(pool)}, nil
}

// Stores holds conversation persistence, backed by Redis/Postgres when available and
// by process memory otherwise.
type Stores struct {
	Records    conversation.RecordStore
	Transcript conversation.Transcript
	Deduper    conversation.MessageDeduper
	Archive    *conversation.TurnArchive
}

// BuildStores picks the persistent implementation of each store when its backend is
// configured.
func BuildStores(cfg *appconfig.Config, redisClient *redis.Client, pg *Postgres, logger *logging.Logger) Stores {
	if logger == nil {
		logger = logging.Default()
	}
	var s Stores
	if redisClient != nil {
		s.Records = conversation.NewRedisRecordStore(redisClient, cfg.RecordTTL)
		s.Transcript = conversation.NewRedisTranscriptStore(redisClient, cfg.RecordTTL)
	} else {
		logger.Warn("redis not configured; conversation records are kept in memory")
		s.Records = conversation.NewMemoryRecordStore()
		s.Transcript = conversation.NewMemoryTranscriptStore()
	}
	if pg != nil {
		s.Deduper = conversation.NewProcessedMessageStore(pg.Pool)
		s.Archive = conversation.NewTurnArchive(pg.DB)
	} else {
		s.Deduper = conversation.NewMemoryMessageDeduper()
	}
	return s
}

// Turns exposes the archive to the admin API. Nil when no archive is configured.
func (s Stores) Turns() conversation.TurnLister {
	if s.Archive == nil {
		return nil
	}
	return s.Archive
}
