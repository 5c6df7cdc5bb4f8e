package chessbuilder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/capture-challenge/internal/advisor"
	corechess "github.com/park285/capture-challenge/internal/chess"
	"github.com/park285/capture-challenge/internal/chess/openingbook"
	"github.com/park285/capture-challenge/internal/chess/remote"
	"github.com/park285/capture-challenge/internal/config"
	"github.com/park285/capture-challenge/internal/msgcat"
	"github.com/park285/capture-challenge/internal/session"
)

type Deps struct {
	Sessions  *session.Service
	Catalog   *msgcat.Catalog
	Evaluator corechess.Evaluator
	Store     session.Store
	Repo      session.Repository

	closers []func() error
}

// New wires every dependency the server needs. Redis, Postgres and the engine are
// optional: without them the server falls back to memory and runs without suggestions.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{}

	preset, err := corechess.GetPreset(cfg.AnalysisPreset)
	if err != nil {
		return nil, err
	}

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	d.Catalog = cat

	d.Evaluator = newEvaluator(cfg, logger)
	if c, ok := d.Evaluator.(interface{ Close() error }); ok {
		d.closers = append(d.closers, c.Close)
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		store, err := session.NewRedisStore(ctx, cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("init session store: %w", err)
		}
		d.Store = store
	} else {
		logger.Warn("session_store_memory", zap.String("reason", "REDIS_URL not set"))
		d.Store = session.NewMemoryStore(cfg.SessionTTL)
	}
	d.closers = append(d.closers, d.Store.Close)

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		repo, err := session.NewPostgresRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("init repository: %w", err)
		}
		d.Repo = repo
	} else {
		logger.Warn("game_repository_memory", zap.String("reason", "DATABASE_URL not set"))
		d.Repo = session.NewMemoryRepository()
	}
	d.closers = append(d.closers, d.Repo.Close)

	d.Sessions = session.New(session.Config{
		Store:      d.Store,
		Repository: d.Repo,
		Evaluator:  d.Evaluator,
		Advisor: advisor.Config{
			Preset:   preset,
			Cooldown: cfg.AnalysisCooldown(),
		},
		LimitEnabled:      cfg.MoveLimitEnabled,
		EndOnNoLegalMoves: cfg.EndOnNoLegalMoves,
		IdleTimeout:       cfg.SessionTTL,
		Logger:            logger,
	})
	return d, nil
}

// newEvaluator prefers a remote analysis host, then a local engine. It returns nil
// when neither is reachable.
func newEvaluator(cfg *config.AppConfig, logger *zap.Logger) corechess.Evaluator {
	if u := strings.TrimSpace(cfg.EngineWSURL); u != "" {
		logger.Info("engine_remote", zap.String("url", u))
		return remote.NewClient(u, remote.WithLogger(logger))
	}

	var book *openingbook.Book
	if path, err := openingbook.ResolvePath(cfg.OpeningBook); err == nil {
		book, err = openingbook.Open(path, openingbook.Options{})
		if err != nil {
			logger.Warn("opening_book_unavailable", zap.String("path", path), zap.Error(err))
		}
	}

	engine, err := corechess.NewEngine(corechess.EngineConfig{
		BinaryPath: cfg.StockfishPath,
		Threads:    cfg.EngineThreads,
		HashMB:     cfg.EngineHashMB,
		Capacity:   cfg.EngineCapacity,
		Book:       book,
		Logger:     logger,
	})
	if err != nil {
		logger.Warn("engine_unavailable", zap.Error(err))
		return nil
	}
	return engine
}

// Close shuts sessions down, then releases the engine, store and repository.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	if d.Sessions != nil {
		d.Sessions.Shutdown()
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
