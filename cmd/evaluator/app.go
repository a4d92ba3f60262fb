package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"nlq_eval/internal/backend"
	"nlq_eval/internal/config"
	"nlq_eval/internal/logging"
	"nlq_eval/internal/queue"
	"nlq_eval/internal/storage"
	"nlq_eval/internal/suggest"
)

// app holds the dependencies shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	client   *backend.Client
	redis    *redis.Client
	sink     logging.Sink
	executor *storage.SQLExecutor
	closers  []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: logging.NewLogger("evaluator")}

	client, err := backend.NewClient(backend.Config{
		BaseURL:          cfg.Backend.BaseURL,
		Timeout:          cfg.Backend.RequestTimeout,
		RateLimit:        cfg.Backend.RateLimit,
		RateBurst:        cfg.Backend.RateBurst,
		CatalogCacheSize: cfg.Cache.CatalogCacheSize,
		CatalogCacheTTL:  cfg.Cache.CatalogCacheTTL,
	}, a.logger.With("component", "backend"))
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	a.client = client

	if cfg.Redis.Enabled {
		rdb, err := newRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.redis = rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })
	}

	sink, err := a.newSink(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.sink = sink

	if cfg.DirectSQL.Enabled {
		exec, err := storage.NewSQLExecutor(storage.ExecutorConfig{
			DSN:               cfg.DirectSQL.DSN,
			EncryptedPassword: cfg.DirectSQL.EncryptedPassword,
			Passphrase:        cfg.DirectSQL.Passphrase,
			Salt:              cfg.DirectSQL.Salt,
			MaxOpenConns:      cfg.DirectSQL.MaxOpenConns,
			MaxIdleConns:      cfg.DirectSQL.MaxIdleConns,
			ConnMaxLifetime:   cfg.DirectSQL.ConnMaxLifetime,
			QueryTimeout:      cfg.DirectSQL.QueryTimeout,
			MaxRows:           cfg.DirectSQL.MaxRows,
		}, a.logger.With("component", "sql-executor"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open direct SQL connection: %w", err)
		}
		a.executor = exec
		a.closers = append(a.closers, func() { _ = exec.Close() })
	}

	return a, nil
}

func newRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// newSink picks the event sink: nothing when disabled, batched S3 archiving
// when a bucket is configured, else rotating local files.
func (a *app) newSink(ctx context.Context) (logging.Sink, error) {
	ev := a.cfg.Events
	if !ev.Enabled {
		return logging.NewNoopSink(), nil
	}

	if ev.S3Bucket == "" {
		sink, err := logging.NewFileSink(ev.FileTemplate, ev.FileMaxSize, ev.FileMaxFiles, ev.BufferSize, ev.FlushInterval)
		if err != nil {
			return nil, fmt.Errorf("failed to create file event sink: %w", err)
		}
		a.logger.Info("Recording events to local files", "file", sink.CurrentFile())
		return sink, nil
	}

	// Redis buffering is opt-in through EVENTS_USE_REDIS.
	var buffer *redis.Client
	if ev.UseRedis {
		buffer = a.redis
	}
	q, dlq := queue.New[*logging.EventRecord](queue.Config{Name: ev.QueueName, Capacity: ev.BufferSize}, buffer)

	writer, err := logging.NewS3Writer(ctx, logging.S3WriterConfig{
		Bucket:          ev.S3Bucket,
		Region:          ev.S3Region,
		Prefix:          ev.S3Prefix,
		PodName:         ev.PodName,
		Endpoint:        ev.S3Endpoint,
		AccessKeyID:     ev.S3AccessKey,
		SecretAccessKey: ev.S3SecretKey,
	})
	if err != nil {
		_ = q.Close()
		_ = dlq.Close()
		return nil, fmt.Errorf("failed to create S3 writer: %w", err)
	}

	a.closers = append(a.closers, func() {
		_ = q.Close()
		_ = dlq.Close()
	})

	return logging.NewS3Sink(ctx, logging.S3SinkConfig{
		FlushSize:     ev.FlushSize,
		FlushInterval: ev.FlushInterval,
	}, q, dlq, writer), nil
}

// suggestSource returns the NLQ suggestion source, cached in Redis when available.
func (a *app) suggestSource() suggest.Source {
	if cached := a.suggestCache(); cached != nil {
		return cached
	}
	return suggest.NewNLQSource(a.client, suggest.DefaultLimit)
}

// suggestCache returns the Redis-backed suggestion source, or nil without Redis.
func (a *app) suggestCache() *suggest.CachedSource {
	if a.redis == nil {
		return nil
	}
	src := suggest.NewNLQSource(a.client, suggest.DefaultLimit)
	return suggest.NewCachedSource(src, a.redis, a.cfg.Suggest.CacheTTL, a.cfg.Suggest.KeyPrefix, a.logger.With("component", "suggest-cache"))
}

// Close flushes the event sink and releases connections in reverse order.
func (a *app) Close() {
	if a.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := a.sink.Shutdown(ctx); err != nil {
			a.logger.Warn("Failed to shutdown event sink", "error", err)
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = logging.Sync()
}
