package capture

import (
	"fmt"
	"time"

	"github.com/corentings/chess/v2"
	"go.uber.org/zap"
)

// Snapshot is the persistable form of an Engine. Score and counters are rebuilt by replay.
type Snapshot struct {
	StartFEN string           `json:"start_fen"`
	Moves    []string         `json:"moves"`
	Limit    MoveLimit        `json:"limit"`
	Pending  *PendingSnapshot `json:"pending,omitempty"`
	Over     bool             `json:"over"`
	Outcome  Outcome          `json:"outcome"`
}

type PendingSnapshot struct {
	From  string    `json:"from"`
	To    string    `json:"to"`
	Since time.Time `json:"since"`
}

func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		StartFEN: e.cur.startFEN,
		Moves:    e.MovesUCI(),
		Limit:    e.limit,
		Over:     e.over,
		Outcome:  e.Outcome(),
	}
	if e.pending != nil {
		s.Pending = &PendingSnapshot{From: e.pending.From.String(), To: e.pending.To.String(), Since: e.pending.Since}
	}
	return s
}

// Restore replaces the engine state with s. The move list is replayed through the
// Rules Oracle with the budget lifted; on any error the engine is left unchanged.
func (e *Engine) Restore(s Snapshot) error {
	fen := s.StartFEN
	if fen == "" {
		fen = chess.NewGame().FEN()
	}
	next, err := newLine(fen)
	if err != nil {
		return err
	}

	saved := e.cur
	e.cur = next
	e.invalidate()
	for i, text := range s.Moves {
		mv, err := e.replayMove(text)
		if err == nil {
			_, err = e.commit(mv)
		}
		if err != nil {
			e.cur = saved
			e.invalidate()
			return fmt.Errorf("restore move %d (%s): %w", i+1, text, err)
		}
		e.invalidate()
	}

	var pending *PendingPromotion
	if s.Pending != nil && !s.Over {
		from, okFrom := ParseSquare(s.Pending.From)
		to, okTo := ParseSquare(s.Pending.To)
		if !okFrom || !okTo {
			e.cur = saved
			e.invalidate()
			return fmt.Errorf("restore pending promotion %s%s: %w", s.Pending.From, s.Pending.To, ErrInvalidNotation)
		}
		pending = &PendingPromotion{From: from, To: to, Since: s.Pending.Since}
	}

	e.limit = s.Limit
	if e.limit.Max <= 0 {
		e.limit.Max = DefaultMoveLimit
	}
	e.pending = pending
	e.over = false
	e.outcome = InProgress
	if s.Over {
		e.over = true
		e.outcome = s.Outcome
	}
	e.settle()
	e.logger.Debug("capture_restored", zap.Int("moves_made", e.cur.movesMade), zap.String("fen", e.FEN()))
	return nil
}

func (e *Engine) replayMove(text string) (chess.Move, error) {
	if len(text) < 4 {
		return chess.Move{}, ErrInvalidNotation
	}
	from, okFrom := ParseSquare(text[:2])
	to, okTo := ParseSquare(text[2:4])
	promo, okPromo := ParsePromotion(text[4:])
	if !okFrom || !okTo || !okPromo {
		return chess.Move{}, ErrInvalidNotation
	}
	for _, mv := range e.movesFrom(from) {
		if mv.S2() == to && mv.Promo() == promo {
			return mv, nil
		}
	}
	return chess.Move{}, classify(e.cur.game.Position(), from, to, e.hasLegalMoves())
}
