package advisor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/capture-challenge/internal/chess"
)

const (
	DefaultCooldown = time.Second
	DefaultTimeout  = 10 * time.Second
)

type Config struct {
	Preset   chess.AnalysisPreset
	Cooldown time.Duration
	// Timeout bounds a single evaluation.
	Timeout time.Duration
	Logger  *zap.Logger
	Clock   func() time.Time
}

// Advisor keeps at most one evaluation in flight for a game and remembers the
// last successful result. A newer request supersedes an older one.
type Advisor struct {
	eval     chess.Evaluator
	preset   chess.AnalysisPreset
	cooldown time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	gen       uint64
	cancel    context.CancelFunc
	done      chan struct{}
	inflight  string
	lastStart time.Time
	latest    *chess.EvaluateResult
	closed    bool
}

// New returns an Advisor. A nil evaluator yields an advisor that never suggests anything.
func New(eval chess.Evaluator, cfg Config) *Advisor {
	a := &Advisor{
		eval:     eval,
		preset:   cfg.Preset,
		cooldown: cfg.Cooldown,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
		now:      cfg.Clock,
	}
	if a.preset.Name == "" {
		a.preset, _ = chess.GetPreset(chess.DefaultPresetName)
	}
	if a.cooldown < 0 {
		a.cooldown = 0
	}
	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// Request asks for an evaluation of fen. Non-forced requests are dropped inside the
// cooldown window and when fen is already analysed or being analysed. It never blocks.
func (a *Advisor) Request(fen string, force bool) {
	if a == nil || a.eval == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	now := a.now()
	if !force {
		if now.Sub(a.lastStart) < a.cooldown {
			return
		}
		if a.inflight == fen || (a.latest != nil && a.latest.FEN == fen) {
			return
		}
	}

	if a.cancel != nil {
		a.cancel()
	}
	if a.latest != nil && a.latest.FEN != fen {
		a.latest = nil
	}
	a.gen++
	gen := a.gen
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	done := make(chan struct{})
	a.cancel = cancel
	a.done = done
	a.inflight = fen
	a.lastStart = now

	go a.run(ctx, cancel, done, gen, fen)
}

func (a *Advisor) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, gen uint64, fen string) {
	defer close(done)
	defer cancel()

	res, err := a.eval.Evaluate(ctx, a.preset.Request(fen))

	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen {
		return
	}
	a.inflight = ""
	a.cancel = nil
	if err != nil {
		a.latest = nil
		a.logger.Warn("advisor_evaluate_failed", zap.String("fen", fen), zap.Error(err))
		return
	}
	res.FEN = fen
	a.latest = &res
	if best, ok := res.Best(); ok {
		a.logger.Debug("advisor_evaluated",
			zap.String("fen", fen),
			zap.String("best_move", res.BestMove),
			zap.String("eval", best.Label()),
		)
	}
}

// Latest returns the last result if it was computed for fen.
func (a *Advisor) Latest(fen string) (chess.EvaluateResult, bool) {
	if a == nil {
		return chess.EvaluateResult{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.latest == nil || a.latest.FEN != fen {
		return chess.EvaluateResult{}, false
	}
	return *a.latest, true
}

// Pending reports whether an evaluation is running.
func (a *Advisor) Pending() bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inflight != ""
}

// Await blocks until the most recent request finishes or ctx ends.
func (a *Advisor) Await(ctx context.Context) error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels any in-flight evaluation; later requests are ignored.
func (a *Advisor) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.closed = true
	a.gen++
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.inflight = ""
	a.mu.Unlock()
}
