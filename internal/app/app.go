// Package app собирает процессы Flowline из конфигурации: пул БД,
// хранилище секретов, провайдеры узлов, движок, брокер, живой лог
// и HTTP сервер с graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Flowline/internal/config"
	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/mq"
	"github.com/shaiso/Flowline/internal/nodes"
	"github.com/shaiso/Flowline/internal/orchestrator"
	"github.com/shaiso/Flowline/internal/providers/imagegen"
	"github.com/shaiso/Flowline/internal/providers/llm"
	"github.com/shaiso/Flowline/internal/providers/mailer"
	"github.com/shaiso/Flowline/internal/repo"
	"github.com/shaiso/Flowline/internal/runlog"
	"github.com/shaiso/Flowline/internal/telemetry"
)

// OpenDatabase подключается к PostgreSQL и, если включено, создаёт схему.
func OpenDatabase(ctx context.Context, cfg config.Database, logger *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := repo.NewPool(ctx, repo.PoolConfig{DSN: cfg.URL, MaxConns: cfg.MaxConns})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := repo.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	logger.Info("database connected", "max_conns", pool.Config().MaxConns)
	return pool, nil
}

// NewCredentialRepo создаёт хранилище секретов. Без ключа возвращает nil:
// {{credential.X}} тогда разрешается только из окружения.
func NewCredentialRepo(pool *pgxpool.Pool, cfg config.Credentials) (*repo.CredentialRepo, error) {
	if cfg.Key == "" || pool == nil {
		return nil, nil
	}
	key, err := repo.ParseKey(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("CREDENTIALS_KEY: %w", err)
	}
	sealer, err := repo.NewSealer(key)
	if err != nil {
		return nil, fmt.Errorf("CREDENTIALS_KEY: %w", err)
	}
	return repo.NewCredentialRepo(pool, sealer), nil
}

// EngineDeps — внешние зависимости движка, которые процесс создаёт сам.
type EngineDeps struct {
	// Pool — пул по умолчанию для dbQuery. nil — только внешние строки подключения.
	Pool *pgxpool.Pool

	// Credentials — хранилище секретов. nil — только окружение.
	Credentials engine.CredentialStore

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// Engine — движок и ресурсы, которые нужно освободить.
type Engine struct {
	*orchestrator.Engine
	pools *repo.PoolRegistry
}

// Close закрывает пулы внешних БД, открытые узлами dbQuery.
func (e *Engine) Close() {
	e.pools.Close()
}

// NewEngine собирает orchestrator.Engine.
//
// Провайдер без ключа не создаётся; узлы, которым он нужен,
// завершаются ErrProviderNotConfigured без повторов.
func NewEngine(ctx context.Context, cfg *config.Config, deps EngineDeps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{Timeout: cfg.Engine.HTTPTimeout}
	pools := repo.NewPoolRegistry(deps.Pool, cfg.Database.AllowExternal)

	ecfg := orchestrator.Config{
		Registry:       nodes.DefaultRegistry(httpClient),
		Credentials:    deps.Credentials,
		DB:             pools,
		Completions:    llm.NewCompletions(cfg.AI.BaseURL),
		Mail:           mailer.New(),
		HTTPClient:     httpClient,
		MaxParallel:    cfg.Engine.MaxParallel,
		NodeTimeout:    cfg.Engine.NodeTimeout,
		WebhookTimeout: cfg.Engine.WebhookTimeout,
		Metrics:        deps.Metrics,
		Logger:         logger,
	}

	chat, err := llm.NewChatModel(ctx, llm.Config{
		APIKey:      cfg.AI.APIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.Model,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
	})
	if err == nil {
		ecfg.Chat = chat
	} else {
		logProviderSkip(logger, "chat model", err)
	}

	images, err := imagegen.New(imageConfig(cfg))
	if err == nil {
		ecfg.Images = images
	} else {
		logProviderSkip(logger, "image generator", err)
	}

	return &Engine{Engine: orchestrator.New(ecfg), pools: pools}
}

// imageConfig — параметры генерации изображений; без собственного ключа
// используется ключ и адрес AI.
func imageConfig(cfg *config.Config) imagegen.Config {
	ic := imagegen.Config{
		APIKey:  cfg.Image.APIKey,
		BaseURL: cfg.Image.BaseURL,
		Model:   cfg.Image.Model,
	}
	if ic.APIKey == "" {
		ic.APIKey = cfg.AI.APIKey
		if ic.BaseURL == "" {
			ic.BaseURL = cfg.AI.BaseURL
		}
	}
	return ic
}

func logProviderSkip(logger *slog.Logger, name string, err error) {
	if errors.Is(err, nodes.ErrProviderNotConfigured) {
		logger.Info("provider not configured", "provider", name)
		return
	}
	logger.Warn("provider disabled", "provider", name, "error", err)
}

// OpenRunLog подключается к Redis для живого лога.
// Возвращает nil без ошибки, если лог выключен или Redis недоступен:
// run выполняются и без него.
func OpenRunLog(ctx context.Context, cfg config.Redis, logger *slog.Logger) (*runlog.Store, func() error) {
	noop := func() error { return nil }
	if cfg.DisableLog {
		return nil, noop
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not available, live run logs disabled", "addr", cfg.Addr, "error", err)
		_ = rdb.Close()
		return nil, noop
	}

	logger.Info("redis connected", "addr", cfg.Addr)
	store := runlog.New(rdb,
		runlog.WithPrefix(cfg.KeyPrefix),
		runlog.WithTTL(cfg.RunLogTTL),
		runlog.WithLogger(logger),
	)
	return store, rdb.Close
}

// OpenQueue подключается к RabbitMQ и объявляет топологию.
func OpenQueue(ctx context.Context, cfg config.AMQP, logger *slog.Logger) (*mq.Connection, error) {
	conn, err := mq.NewConnection(cfg.URL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	if err := mq.SetupTopology(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	logger.Info("rabbitmq connected")
	return conn, nil
}

// Serve обслуживает HTTP до отмены ctx, затем завершает сервер
// с таймаутом cfg.ShutdownTimeout.
func Serve(ctx context.Context, cfg config.HTTP, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// OpsMux — /healthz и /metrics для процессов без API.
func OpsMux(startTime time.Time) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime).Round(time.Second))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}
