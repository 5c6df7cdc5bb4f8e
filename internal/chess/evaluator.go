package chess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrEngineTimeout     = errors.New("engine timeout")
)

// Evaluator is the Evaluation Oracle: given a position it suggests moves with scores.
type Evaluator interface {
	Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateResult, error)
}

type Limits struct {
	Depth          int `json:"depth,omitempty" yaml:"depth"`
	MoveTimeMillis int `json:"movetime_ms,omitempty" yaml:"movetime_ms"`
	NodeCap        int `json:"nodes,omitempty" yaml:"nodes"`
}

type EvaluateRequest struct {
	FEN     string `json:"fen"`
	Limits  Limits `json:"limits"`
	MultiPV int    `json:"multipv"`
}

// Candidate scores are from White's point of view: positive favours White,
// and a positive MateIn means White mates.
type Candidate struct {
	Move      string   `json:"move"`
	EvalCP    int      `json:"eval_cp"`
	MateIn    int      `json:"mate_in,omitempty"`
	IsMate    bool     `json:"is_mate,omitempty"`
	Depth     int      `json:"depth,omitempty"`
	Principal []string `json:"pv,omitempty"`
}

// Label formats the evaluation like the scoreboard: "Mate in 3" or "+0.3".
func (c Candidate) Label() string {
	if c.IsMate {
		return fmt.Sprintf("Mate in %d", c.MateIn)
	}
	return fmt.Sprintf("%+.1f", float64(c.EvalCP)/100.0)
}

type EvaluateResult struct {
	FEN        string        `json:"fen"`
	Candidates []Candidate   `json:"candidates"`
	BestMove   string        `json:"best_move"`
	BookMoves  []string      `json:"book_moves,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Best returns the first candidate, if any.
func (r EvaluateResult) Best() (Candidate, bool) {
	if len(r.Candidates) == 0 {
		return Candidate{}, false
	}
	return r.Candidates[0], true
}

// whiteToMove reads the side-to-move field of a FEN. Anything unreadable counts as White.
func whiteToMove(fen string) bool {
	fields := strings.Fields(fen)
	return len(fields) < 2 || fields[1] != "b"
}

// toWhitePOV flips side-to-move scores when Black is to move.
func toWhitePOV(c Candidate, fen string) Candidate {
	if whiteToMove(fen) {
		return c
	}
	c.EvalCP = -c.EvalCP
	c.MateIn = -c.MateIn
	return c
}

// mapEngineError folds context failures into the package sentinels.
func mapEngineError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrEngineUnavailable), errors.Is(err, ErrEngineTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrEngineTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
}
