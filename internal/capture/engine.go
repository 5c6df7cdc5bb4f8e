package capture

import (
	"fmt"
	"slices"
	"time"

	"github.com/corentings/chess/v2"
	"go.uber.org/zap"
)

// EvaluationRequester receives a hint that the position changed. Implementations must not block.
type EvaluationRequester interface {
	Request(fen string, force bool)
}

type Options struct {
	Rules     RulesOracle
	Evaluator EvaluationRequester
	Logger    *zap.Logger
	Clock     func() time.Time

	// LimitEnabled switches the move budget on for new engines; the budget is always DefaultMoveLimit.
	LimitEnabled bool
	// EndOnNoLegalMoves ends the game with a score decision on checkmate or stalemate.
	EndOnNoLegalMoves bool
}

// line is everything that Reset, LoadFEN and Restore replace as a unit.
type line struct {
	game        *chess.Game
	startFEN    string
	score       Score
	movesMade   int
	uci         []string
	san         []string
	lastMove    *Move
	lastCapture *Capture
}

// Engine holds one capture game. It is not safe for concurrent use.
type Engine struct {
	rules             RulesOracle
	evaluator         EvaluationRequester
	logger            *zap.Logger
	now               func() time.Time
	endOnNoLegalMoves bool

	cur     line
	limit   MoveLimit
	pending *PendingPromotion
	over    bool
	outcome Outcome

	legal map[chess.Square][]chess.Move
	dests map[chess.Square][]chess.Square
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		rules:             opts.Rules,
		evaluator:         opts.Evaluator,
		logger:            opts.Logger,
		now:               opts.Clock,
		endOnNoLegalMoves: opts.EndOnNoLegalMoves,
		limit:             MoveLimit{Enabled: opts.LimitEnabled, Max: DefaultMoveLimit},
		outcome:           InProgress,
	}
	if e.rules == nil {
		e.rules = LibraryRules{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.install(line{game: chess.NewGame(), startFEN: chess.NewGame().FEN()})
	return e
}

// Reset returns to the standard starting position with a fresh score and budget count.
func (e *Engine) Reset() {
	e.install(line{game: chess.NewGame(), startFEN: chess.NewGame().FEN()})
	e.logger.Debug("capture_reset")
	e.requestEvaluation(true)
}

// LoadFEN replaces the position. On a parse error nothing changes.
func (e *Engine) LoadFEN(fen string) error {
	next, err := newLine(fen)
	if err != nil {
		return err
	}
	e.install(next)
	e.logger.Debug("capture_fen_loaded", zap.String("fen", e.cur.startFEN))
	e.requestEvaluation(true)
	return nil
}

func newLine(fen string) (line, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return line{}, fmt.Errorf("%w: %v", ErrInvalidNotation, err)
	}
	g := chess.NewGame(opt)
	if err := checkStructure(g.Position()); err != nil {
		return line{}, fmt.Errorf("%w: %v", ErrInvalidNotation, err)
	}
	return line{game: g, startFEN: g.FEN()}, nil
}

// checkStructure rejects boards the rules library parses but cannot play sanely:
// a missing or extra king, a pawn on a back rank, or the side that just moved still in check.
func checkStructure(pos *chess.Position) error {
	board := pos.Board()
	kings := map[chess.Color]int{}
	for sq := chess.Square(0); sq < 64; sq++ {
		p := board.Piece(sq)
		switch p.Type() {
		case chess.King:
			kings[p.Color()]++
		case chess.Pawn:
			if r := sq.Rank(); r == chess.Rank1 || r == chess.Rank8 {
				return fmt.Errorf("pawn on back rank %s", sq)
			}
		}
	}
	for _, c := range []chess.Color{chess.White, chess.Black} {
		if kings[c] != 1 {
			return fmt.Errorf("%s has %d kings", ColorName(c), kings[c])
		}
	}
	if kingAttacked(board, pos.Turn().Other()) {
		return fmt.Errorf("%s is in check but not to move", ColorName(pos.Turn().Other()))
	}
	return nil
}

func (e *Engine) install(l line) {
	e.cur = l
	e.pending = nil
	e.over = false
	e.outcome = InProgress
	e.invalidate()
	e.settle()
}

func (e *Engine) invalidate() {
	e.legal = nil
	e.dests = nil
}

// legalMoves groups the oracle's moves by origin, computed once per position.
func (e *Engine) legalMoves() map[chess.Square][]chess.Move {
	if e.legal == nil {
		e.legal = make(map[chess.Square][]chess.Move)
		for _, mv := range e.rules.LegalMoves(e.cur.game) {
			e.legal[mv.S1()] = append(e.legal[mv.S1()], mv)
		}
	}
	return e.legal
}

func (e *Engine) movesFrom(from chess.Square) []chess.Move {
	return e.legalMoves()[from]
}

func (e *Engine) hasLegalMoves() bool {
	return len(e.legalMoves()) > 0
}

// LegalDestinations lists where the piece on from may go. It is empty whenever no move can be made now.
func (e *Engine) LegalDestinations(from chess.Square) []chess.Square {
	if e.over || e.limit.Exhausted(e.cur.movesMade) || e.pending != nil || !validSquare(from) {
		return nil
	}
	piece := e.cur.game.Position().Board().Piece(from)
	if piece == chess.NoPiece || piece.Color() != e.Turn() {
		return nil
	}
	if d, ok := e.dests[from]; ok {
		return slices.Clone(d)
	}
	var out []chess.Square
	for _, mv := range e.movesFrom(from) {
		out = append(out, mv.S2())
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if e.dests == nil {
		e.dests = make(map[chess.Square][]chess.Square)
	}
	e.dests[from] = out
	return slices.Clone(out)
}

// ApplyMove plays from->to. A promotion without a choice parks the engine in the
// promotion-pending state and reports StatusPromotionRequired without changing the position.
func (e *Engine) ApplyMove(from, to chess.Square, promo chess.PieceType) (MoveResult, error) {
	if e.over || e.limit.Exhausted(e.cur.movesMade) {
		return MoveResult{}, ErrGameOver
	}
	if !validSquare(from) || !validSquare(to) {
		return MoveResult{}, illegal(ReasonOffBoard, from, to, chess.NoPieceType)
	}
	pos := e.cur.game.Position()
	if e.pending != nil && (e.pending.From != from || e.pending.To != to) {
		return MoveResult{}, illegal(ReasonPromotionPending, e.pending.From, e.pending.To, chess.Pawn)
	}

	var candidates []chess.Move
	for _, mv := range e.movesFrom(from) {
		if mv.S2() == to {
			candidates = append(candidates, mv)
		}
	}
	if len(candidates) == 0 {
		err := classify(pos, from, to, e.hasLegalMoves())
		e.logger.Debug("capture_move_rejected",
			zap.String("move", Move{From: from, To: to}.String()),
			zap.String("reason", string(err.Reason)),
		)
		return MoveResult{}, err
	}

	chosen, needChoice, err := pickPromotion(candidates, from, to, promo)
	if err != nil {
		return MoveResult{}, err
	}
	if needChoice {
		if e.pending == nil {
			e.pending = &PendingPromotion{From: from, To: to, Since: e.now()}
			e.logger.Debug("capture_promotion_pending", zap.String("from", from.String()), zap.String("to", to.String()))
		}
		return MoveResult{
			Status:  StatusPromotionRequired,
			Move:    Move{From: from, To: to},
			Score:   e.cur.score,
			Outcome: e.Outcome(),
		}, nil
	}

	captured, err := e.commit(chosen)
	if err != nil {
		return MoveResult{}, err
	}
	e.pending = nil
	e.invalidate()
	e.settle()

	res := MoveResult{
		Status:   StatusApplied,
		Move:     *e.cur.lastMove,
		SAN:      e.cur.san[len(e.cur.san)-1],
		Captured: captured,
		Score:    e.cur.score,
		Outcome:  e.Outcome(),
		Check:    e.InCheck(),
	}
	e.logger.Debug("capture_move_applied",
		zap.String("move", res.Move.String()),
		zap.Int("moves_made", e.cur.movesMade),
		zap.Int("score_white", res.Score.White),
		zap.Int("score_black", res.Score.Black),
		zap.String("outcome", string(res.Outcome)),
	)
	e.requestEvaluation(true)
	return res, nil
}

func pickPromotion(candidates []chess.Move, from, to chess.Square, promo chess.PieceType) (chess.Move, bool, error) {
	promotes := candidates[0].Promo() != chess.NoPieceType
	if !promotes {
		if promo != chess.NoPieceType {
			return chess.Move{}, false, illegal(ReasonInvalidPromotion, from, to, chess.Pawn)
		}
		return candidates[0], false, nil
	}
	if promo == chess.NoPieceType {
		return chess.Move{}, true, nil
	}
	for _, mv := range candidates {
		if mv.Promo() == promo {
			return mv, false, nil
		}
	}
	return chess.Move{}, false, illegal(ReasonInvalidPromotion, from, to, chess.Pawn)
}

// commit credits the capture from the pre-move board and then pushes the move.
// It returns the capture this move made, if any.
func (e *Engine) commit(mv chess.Move) (*Capture, error) {
	pos := e.cur.game.Position()
	mover := pos.Turn()
	captured := capturedPiece(pos.Board(), &mv)
	san := chess.AlgebraicNotation{}.Encode(pos, &mv)

	push := mv
	if err := e.cur.game.Move(&push, nil); err != nil {
		return nil, fmt.Errorf("push %s: %w", mv.String(), err)
	}

	applied := Move{From: mv.S1(), To: mv.S2(), Promotion: mv.Promo()}
	e.cur.lastMove = &applied
	var c *Capture
	if captured != chess.NoPieceType {
		c = &Capture{By: mover, Piece: captured, Value: PieceValue(captured)}
		e.cur.score.credit(mover, c.Value)
		// kept until the next capture; quiet moves leave it alone
		e.cur.lastCapture = c
	}
	e.cur.movesMade++
	e.cur.uci = append(e.cur.uci, applied.String())
	e.cur.san = append(e.cur.san, san)
	return c, nil
}

// capturedPiece reports what the move removes: the destination occupant, or the pawn taken en passant.
func capturedPiece(board *chess.Board, mv *chess.Move) chess.PieceType {
	if p := board.Piece(mv.S2()); p != chess.NoPiece {
		return p.Type()
	}
	if mv.HasTag(chess.EnPassant) {
		return chess.Pawn
	}
	return chess.NoPieceType
}

// settle latches the outcome once the budget is spent.
func (e *Engine) settle() {
	if e.over {
		return
	}
	ended := e.limit.Exhausted(e.cur.movesMade)
	if !ended && e.endOnNoLegalMoves && !e.hasLegalMoves() {
		ended = true
	}
	if !ended {
		return
	}
	e.over = true
	e.outcome = e.cur.score.decide()
	e.pending = nil
	e.logger.Info("capture_game_over",
		zap.String("outcome", string(e.outcome)),
		zap.Int("score_white", e.cur.score.White),
		zap.Int("score_black", e.cur.score.Black),
		zap.Int("moves_made", e.cur.movesMade),
	)
}

// CancelPromotion abandons a pending promotion. No move is counted.
func (e *Engine) CancelPromotion() bool {
	if e.pending == nil {
		return false
	}
	e.pending = nil
	return true
}

// ToggleMoveLimit flips the budget. Switching it on restores DefaultMoveLimit and may end the game at once.
func (e *Engine) ToggleMoveLimit() MoveLimit {
	if e.limit.Enabled {
		e.limit.Enabled = false
	} else {
		e.limit = MoveLimit{Enabled: true, Max: DefaultMoveLimit}
		e.settle()
	}
	e.logger.Debug("capture_limit_toggled", zap.Bool("enabled", e.limit.Enabled))
	return e.limit
}

// Outcome is InProgress until the game ends, then the latched result.
func (e *Engine) Outcome() Outcome {
	if !e.over {
		return InProgress
	}
	return e.outcome
}

func (e *Engine) State() State {
	switch {
	case e.over:
		return StateOver
	case e.pending != nil:
		return StatePromotionPending
	default:
		return StateActive
	}
}

func (e *Engine) Turn() chess.Color { return e.cur.game.Position().Turn() }
func (e *Engine) Score() Score { return e.cur.score }
func (e *Engine) MovesMade() int { return e.cur.movesMade }
func (e *Engine) Limit() MoveLimit { return e.limit }
func (e *Engine) FEN() string { return e.cur.game.FEN() }
func (e *Engine) StartFEN() string { return e.cur.startFEN }
func (e *Engine) InCheck() bool { return e.rules.InCheck(e.cur.game) }
func (e *Engine) MovesUCI() []string { return slices.Clone(e.cur.uci) }
func (e *Engine) MovesSAN() []string { return slices.Clone(e.cur.san) }
func (e *Engine) Remaining() int { return e.limit.Remaining(e.cur.movesMade) }
func (e *Engine) Game() *chess.Game { return e.cur.game.Clone() }
func (e *Engine) HasLegalMoves() bool { return e.hasLegalMoves() }
func (e *Engine) Pending() *PendingPromotion {
	if e.pending == nil {
		return nil
	}
	p := *e.pending
	return &p
}

func (e *Engine) LastMove() *Move {
	if e.cur.lastMove == nil {
		return nil
	}
	m := *e.cur.lastMove
	return &m
}

func (e *Engine) LastCapture() *Capture {
	if e.cur.lastCapture == nil {
		return nil
	}
	c := *e.cur.lastCapture
	return &c
}

func (e *Engine) PieceAt(sq chess.Square) (chess.Piece, bool) {
	if !validSquare(sq) {
		return chess.NoPiece, false
	}
	p := e.cur.game.Position().Board().Piece(sq)
	return p, p != chess.NoPiece
}

// Board lists occupied squares from a1 to h8.
func (e *Engine) Board() []Placement {
	board := e.cur.game.Position().Board()
	var out []Placement
	for sq := chess.Square(0); sq < 64; sq++ {
		p := board.Piece(sq)
		if p == chess.NoPiece {
			continue
		}
		out = append(out, Placement{Square: sq, Color: p.Color(), Piece: p.Type()})
	}
	return out
}

func (e *Engine) requestEvaluation(force bool) {
	if e.evaluator == nil {
		return
	}
	e.evaluator.Request(e.FEN(), force)
}

// RequestEvaluation asks for a non-forced refresh, subject to the evaluator's cooldown.
func (e *Engine) RequestEvaluation() {
	e.requestEvaluation(false)
}
