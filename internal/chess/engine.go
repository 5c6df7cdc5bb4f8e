package chess

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/park285/capture-challenge/internal/chess/openingbook"
	"github.com/park285/capture-challenge/internal/chess/uci"
)

// HomebrewStockfishPath is tried before falling back to PATH.
const HomebrewStockfishPath = "/opt/homebrew/bin/stockfish"

type EngineConfig struct {
	BinaryPath string
	Threads    int
	HashMB     int
	// Capacity bounds concurrent engine processes per option set.
	Capacity int
	Book     *openingbook.Book
	Logger   *zap.Logger
}

// Engine evaluates positions with a local UCI engine process pool.
type Engine struct {
	pool    *uci.Pool
	threads int
	hashMB  int
	book    *openingbook.Book
	logger  *zap.Logger
}

// ResolveBinary returns the configured path, the Homebrew install location, or
// "stockfish" from PATH, whichever exists first.
func ResolveBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured, nil
		}
		if p, err := exec.LookPath(configured); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("%w: %s not found", ErrEngineUnavailable, configured)
	}
	if _, err := os.Stat(HomebrewStockfishPath); err == nil {
		return HomebrewStockfishPath, nil
	}
	p, err := exec.LookPath("stockfish")
	if err != nil {
		return "", fmt.Errorf("%w: stockfish not on PATH", ErrEngineUnavailable)
	}
	return p, nil
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	bin, err := ResolveBinary(cfg.BinaryPath)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := uci.NewPool(uci.PoolConfig{BinaryPath: bin, Capacity: cfg.Capacity, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = 2
	}
	hash := cfg.HashMB
	if hash <= 0 {
		hash = 128
	}
	logger.Info("engine_ready", zap.String("binary", bin), zap.Int("threads", threads), zap.Int("hash_mb", hash))
	return &Engine{pool: pool, threads: threads, hashMB: hash, book: cfg.Book, logger: logger}, nil
}

func (e *Engine) BinaryPath() string { return e.pool.BinaryPath() }

func (e *Engine) Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateResult, error) {
	start := time.Now()
	multiPV := req.MultiPV
	if multiPV <= 0 {
		multiPV = 1
	}

	session, err := e.pool.Acquire(ctx, uci.Options{Threads: e.threads, HashMB: e.hashMB, MultiPV: multiPV})
	if err != nil {
		return EvaluateResult{}, mapEngineError(err)
	}
	var releaseErr error
	defer func() {
		e.pool.Release(session, releaseErr)
	}()

	if err := session.NewGame(ctx); err != nil {
		releaseErr = err
		return EvaluateResult{}, mapEngineError(err)
	}

	resp, err := session.Search(ctx, uci.SearchRequest{FEN: req.FEN, Limits: toUCILimits(req.Limits)})
	if err != nil {
		// a stopped search leaves the process idle and reusable
		if !errors.Is(err, uci.ErrSearchStopped) {
			releaseErr = err
		}
		return EvaluateResult{}, mapEngineError(err)
	}

	result := EvaluateResult{
		FEN:        req.FEN,
		Candidates: convertCandidates(resp.Candidates, req.FEN),
		BestMove:   resp.BestMove,
		Duration:   time.Since(start),
	}
	if result.BestMove == "" {
		if best, ok := result.Best(); ok {
			result.BestMove = best.Move
		}
	}
	result.BookMoves = e.bookMoves(req.FEN)

	e.logger.Debug("engine_evaluated",
		zap.String("fen", req.FEN),
		zap.String("best_move", result.BestMove),
		zap.Int("candidates", len(result.Candidates)),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func (e *Engine) bookMoves(fen string) []string {
	if e.book == nil {
		return nil
	}
	results, err := e.book.Lookup(fen)
	if err != nil {
		e.logger.Debug("book_lookup_failed", zap.Error(err))
		return nil
	}
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Move)
	}
	return out
}

func (e *Engine) Close() error {
	if e.pool == nil {
		return nil
	}
	err := e.pool.Close()
	if err != nil && !errors.Is(err, uci.ErrPoolClosed) {
		e.logger.Debug("engine_pool_close", zap.Error(err))
	}
	return nil
}

func convertCandidates(in []uci.Candidate, fen string) []Candidate {
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		out = append(out, toWhitePOV(Candidate{
			Move:      c.Move,
			EvalCP:    c.EvalCP,
			MateIn:    c.Mate,
			IsMate:    c.IsMate,
			Depth:     c.Depth,
			Principal: append([]string(nil), c.Principal...),
		}, fen))
	}
	return out
}
