// Package app provides application initialization and dependency wiring.
//
// App owns the process-wide client handles: the Gemini client, the
// vector search client and the database pool. All of them are created
// once at startup, immutable afterwards and shared by every request.
// Startup failures are not tolerated — Setup returns an error and the
// process exits rather than running degraded.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/truenorth/truenorth/db"
	"github.com/truenorth/truenorth/internal/chunkstore"
	"github.com/truenorth/truenorth/internal/config"
	"github.com/truenorth/truenorth/internal/gemini"
	"github.com/truenorth/truenorth/internal/log"
	"github.com/truenorth/truenorth/internal/rag"
	"github.com/truenorth/truenorth/internal/vectorsearch"
)

// Connection pool tuning. Connections are verified by a periodic health
// check and recycled after a fixed age to avoid stale long-lived
// connections.
const (
	poolMaxConns          = 10
	poolMinConns          = 2
	poolMaxConnLifetime   = time.Hour
	poolHealthCheckPeriod = time.Minute
	startupPingTimeout    = 5 * time.Second
)

// App is the application container.
type App struct {
	Config   *config.Config
	Logger   log.Logger
	Pool     *pgxpool.Pool
	Pipeline *rag.Pipeline
}

// Setup creates and wires all application components.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	pool, err := providePool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	geminiClient, err := gemini.New(ctx, gemini.Config{
		Project:    cfg.Project,
		Location:   cfg.Location,
		HydeModel:  cfg.HydeModel,
		QAModel:    cfg.QAModel,
		EmbedModel: cfg.EmbedModel,
		Dimensions: int32(cfg.Dimensions),
	}, logger.With("component", "gemini"))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	index, err := vectorsearch.New(ctx, vectorsearch.Config{
		Location:        cfg.Location,
		IndexEndpoint:   cfg.IndexEndpoint,
		DeployedIndexID: cfg.DeployedIndexID,
	}, logger.With("component", "vectorsearch"))
	if err != nil {
		return nil, fmt.Errorf("creating vector search client: %w", err)
	}

	chunks, err := chunkstore.New(pool, logger.With("component", "chunkstore"))
	if err != nil {
		return nil, fmt.Errorf("creating chunk store: %w", err)
	}

	pipeline, err := rag.New(rag.Config{
		Generator: geminiClient,
		Embedder:  geminiClient,
		Index:     index,
		Chunks:    chunks,
		Logger:    logger.With("component", "rag"),
		MaxInput:  cfg.MaxInput,
		TopK:      cfg.TopK,
	})
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}
	a.Pipeline = pipeline

	return a, nil
}

// Close releases all resources held by the App.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}
}

// providePool runs migrations and creates the PostgreSQL connection
// pool. The startup ping fails fast on an unreachable database.
func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = poolMaxConns
	poolCfg.MinConns = poolMinConns
	poolCfg.MaxConnLifetime = poolMaxConnLifetime
	poolCfg.HealthCheckPeriod = poolHealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
