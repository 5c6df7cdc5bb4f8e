package capture

import (
	"errors"
	"slices"
	"testing"

	"github.com/corentings/chess/v2"
)

type recordingRequester struct {
	calls []bool
	fens  []string
}

func (r *recordingRequester) Request(fen string, force bool) {
	r.calls = append(r.calls, force)
	r.fens = append(r.fens, fen)
}

func newTestEngine(t *testing.T, fen string, limit bool) *Engine {
	t.Helper()
	e := NewEngine(Options{LimitEnabled: limit})
	if fen != "" {
		if err := e.LoadFEN(fen); err != nil {
			t.Fatalf("load fen: %v", err)
		}
	}
	return e
}

func play(t *testing.T, e *Engine, moves ...string) MoveResult {
	t.Helper()
	var res MoveResult
	for _, m := range moves {
		from, _ := ParseSquare(m[:2])
		to, _ := ParseSquare(m[2:4])
		promo, _ := ParsePromotion(m[4:])
		var err error
		res, err = e.ApplyMove(from, to, promo)
		if err != nil {
			t.Fatalf("move %s: %v", m, err)
		}
	}
	return res
}

func TestApplyMoveCreditsCaptures(t *testing.T) {
	e := newTestEngine(t, "", true)

	res := play(t, e, "e2e4", "d7d5", "e4d5")
	if res.Captured == nil || res.Captured.Piece != chess.Pawn || res.Captured.Value != 1 {
		t.Fatalf("unexpected capture: %+v", res.Captured)
	}
	if got := e.Score(); got != (Score{White: 1}) {
		t.Fatalf("score after exd5: %+v", got)
	}

	play(t, e, "d8d5")
	if got := e.Score(); got != (Score{White: 1, Black: 1}) {
		t.Fatalf("score after Qxd5: %+v", got)
	}
	if e.MovesMade() != 4 {
		t.Fatalf("moves made: got %d want 4", e.MovesMade())
	}
	if e.Turn() != chess.White {
		t.Fatalf("turn: got %v want white", e.Turn())
	}
}

func TestQueenCaptureLabel(t *testing.T) {
	e := newTestEngine(t, "4k3/8/8/3q4/8/8/8/3QK3 w - - 0 1", true)

	res := play(t, e, "d1d5")
	if res.Score.White != 9 || res.Score.Black != 0 {
		t.Fatalf("score: %+v", res.Score)
	}
	last := e.LastCapture()
	if last == nil {
		t.Fatalf("expected last capture")
	}
	if got := last.Label(); got != "q (+9 pts)" {
		t.Fatalf("label: got %q", got)
	}
	if res.SAN != "Qxd5" {
		t.Fatalf("san: got %q", res.SAN)
	}
}

func TestEnPassantScoresPawn(t *testing.T) {
	e := newTestEngine(t, "4k3/8/8/3Pp3/8/8/8/4K3 w - e6 0 1", true)

	res := play(t, e, "d5e6")
	if res.Captured == nil || res.Captured.Piece != chess.Pawn {
		t.Fatalf("expected en passant capture, got %+v", res.Captured)
	}
	if e.Score().White != 1 {
		t.Fatalf("score: %+v", e.Score())
	}
	if p, ok := e.PieceAt(chess.E5); ok {
		t.Fatalf("captured pawn still on e5: %v", p)
	}
}

func TestPromotionCaptureScoresCapturedPiece(t *testing.T) {
	e := newTestEngine(t, "1r5k/P7/8/8/8/8/8/K7 w - - 0 1", true)

	play(t, e, "a7b8q")
	if e.Score().White != 5 {
		t.Fatalf("score: %+v", e.Score())
	}
	p, ok := e.PieceAt(chess.B8)
	if !ok || p.Type() != chess.Queen || p.Color() != chess.White {
		t.Fatalf("b8: got %v", p)
	}
}

func knightShuffle(n int) []string {
	cycle := []string{"g1f3", "g8f6", "f3g1", "f6g8"}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, cycle[i%len(cycle)])
	}
	return out
}

func TestMoveLimitEndsGame(t *testing.T) {
	e := newTestEngine(t, "", true)

	play(t, e, knightShuffle(DefaultMoveLimit-1)...)
	if e.Outcome() != InProgress {
		t.Fatalf("outcome before last move: %v", e.Outcome())
	}
	if e.Remaining() != 1 {
		t.Fatalf("remaining: got %d", e.Remaining())
	}

	res := play(t, e, knightShuffle(DefaultMoveLimit)[DefaultMoveLimit-1])
	if res.Outcome != Draw || e.State() != StateOver {
		t.Fatalf("expected draw and over, got %v / %v", res.Outcome, e.State())
	}
	if _, err := e.ApplyMove(chess.E2, chess.E4, chess.NoPieceType); !errors.Is(err, ErrGameOver) {
		t.Fatalf("expected ErrGameOver, got %v", err)
	}
	if d := e.LegalDestinations(chess.E2); len(d) != 0 {
		t.Fatalf("destinations after game over: %v", d)
	}
	if e.MovesMade() != DefaultMoveLimit {
		t.Fatalf("moves made: %d", e.MovesMade())
	}
}

func TestMoveLimitWinnerByScore(t *testing.T) {
	e := newTestEngine(t, "4k3/8/8/3q4/8/8/8/3QK3 w - - 0 1", true)

	play(t, e, "d1d5", "e8f8", "d5d1", "f8e8", "d1d5", "e8f8", "d5d1", "f8e8", "d1d5", "e8f8", "d5d1", "f8e8")
	if e.Outcome() != WhiteWins {
		t.Fatalf("outcome: got %v", e.Outcome())
	}
}

func TestToggleMoveLimit(t *testing.T) {
	e := newTestEngine(t, "", true)

	if l := e.ToggleMoveLimit(); l.Enabled {
		t.Fatalf("expected limit off")
	}
	play(t, e, knightShuffle(14)...)
	if e.Outcome() != InProgress {
		t.Fatalf("unbounded game ended: %v", e.Outcome())
	}
	if e.Remaining() != -1 {
		t.Fatalf("remaining with limit off: %d", e.Remaining())
	}

	l := e.ToggleMoveLimit()
	if !l.Enabled || l.Max != DefaultMoveLimit {
		t.Fatalf("limit: %+v", l)
	}
	if e.State() != StateOver || e.Outcome() != Draw {
		t.Fatalf("expected immediate end, got %v / %v", e.State(), e.Outcome())
	}

	// the outcome stays latched while the flag flips
	e.ToggleMoveLimit()
	if e.Outcome() != Draw {
		t.Fatalf("outcome after toggling off: %v", e.Outcome())
	}
	if _, err := e.ApplyMove(chess.E2, chess.E4, chess.NoPieceType); !errors.Is(err, ErrGameOver) {
		t.Fatalf("expected ErrGameOver, got %v", err)
	}

	e.Reset()
	if e.State() != StateActive || e.MovesMade() != 0 {
		t.Fatalf("reset: %v moves=%d", e.State(), e.MovesMade())
	}
}

func TestPromotionPending(t *testing.T) {
	e := newTestEngine(t, "8/P7/8/8/8/8/8/k6K w - - 0 1", true)
	before := e.FEN()

	res, err := e.ApplyMove(chess.A7, chess.A8, chess.NoPieceType)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Status != StatusPromotionRequired {
		t.Fatalf("status: %v", res.Status)
	}
	if e.FEN() != before || e.MovesMade() != 0 || e.Turn() != chess.White {
		t.Fatalf("position changed while pending")
	}
	if e.State() != StatePromotionPending {
		t.Fatalf("state: %v", e.State())
	}
	if d := e.LegalDestinations(chess.H1); len(d) != 0 {
		t.Fatalf("destinations while pending: %v", d)
	}

	_, err = e.ApplyMove(chess.H1, chess.G1, chess.NoPieceType)
	var ime *IllegalMoveError
	if !errors.As(err, &ime) || ime.Reason != ReasonPromotionPending {
		t.Fatalf("expected promotion_pending, got %v", err)
	}

	res, err = e.ApplyMove(chess.A7, chess.A8, chess.NoPieceType)
	if err != nil || res.Status != StatusPromotionRequired {
		t.Fatalf("repeat without choice: %v %v", res.Status, err)
	}

	res = play(t, e, "a7a8n")
	if res.Status != StatusApplied || e.MovesMade() != 1 || e.Turn() != chess.Black {
		t.Fatalf("completion: %+v", res)
	}
	if p, _ := e.PieceAt(chess.A8); p.Type() != chess.Knight {
		t.Fatalf("a8: %v", p)
	}
	if e.Pending() != nil {
		t.Fatalf("pending not cleared")
	}
}

func TestCancelPromotion(t *testing.T) {
	e := newTestEngine(t, "8/P7/8/8/8/8/8/k6K w - - 0 1", true)

	if e.CancelPromotion() {
		t.Fatalf("cancel with nothing pending")
	}
	if _, err := e.ApplyMove(chess.A7, chess.A8, chess.NoPieceType); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !e.CancelPromotion() {
		t.Fatalf("cancel pending")
	}
	if e.State() != StateActive || e.MovesMade() != 0 {
		t.Fatalf("after cancel: %v %d", e.State(), e.MovesMade())
	}
	play(t, e, "h1g1")
}

func TestInvalidPromotionChoice(t *testing.T) {
	e := newTestEngine(t, "8/P7/8/8/8/8/8/k6K w - - 0 1", true)

	_, err := e.ApplyMove(chess.A7, chess.A8, chess.King)
	var ime *IllegalMoveError
	if !errors.As(err, &ime) || ime.Reason != ReasonInvalidPromotion {
		t.Fatalf("expected invalid_promotion, got %v", err)
	}
	if e.State() != StateActive {
		t.Fatalf("state: %v", e.State())
	}
}

func TestLoadFENRejectsGarbage(t *testing.T) {
	e := newTestEngine(t, "", true)
	play(t, e, "e2e4")
	before := e.FEN()

	err := e.LoadFEN("not a position")
	if !errors.Is(err, ErrInvalidNotation) {
		t.Fatalf("expected ErrInvalidNotation, got %v", err)
	}
	if e.FEN() != before || e.MovesMade() != 1 {
		t.Fatalf("state changed on failed import")
	}
}

func TestLoadFENResetsCounters(t *testing.T) {
	e := newTestEngine(t, "4k3/8/8/3q4/8/8/8/3QK3 w - - 0 1", true)
	play(t, e, "d1d5")

	if err := e.LoadFEN("4k3/8/8/8/8/8/8/4K3 b - - 0 1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if e.Score() != (Score{}) || e.MovesMade() != 0 || e.LastCapture() != nil {
		t.Fatalf("counters not reset: %+v %d", e.Score(), e.MovesMade())
	}
	if e.Turn() != chess.Black {
		t.Fatalf("turn: %v", e.Turn())
	}
}

func TestLegalDestinations(t *testing.T) {
	e := newTestEngine(t, "", true)

	if got, want := e.LegalDestinations(chess.E2), []chess.Square{chess.E3, chess.E4}; !slices.Equal(got, want) {
		t.Fatalf("e2: got %v want %v", got, want)
	}
	if got, want := e.LegalDestinations(chess.G1), []chess.Square{chess.F3, chess.H3}; !slices.Equal(got, want) {
		t.Fatalf("g1: got %v want %v", got, want)
	}
	if got := e.LegalDestinations(chess.E7); len(got) != 0 {
		t.Fatalf("black piece on white turn: %v", got)
	}
	if got := e.LegalDestinations(chess.E4); len(got) != 0 {
		t.Fatalf("empty square: %v", got)
	}

	play(t, e, "e2e4")
	if got := e.LegalDestinations(chess.E4); len(got) != 0 {
		t.Fatalf("stale cache after move: %v", got)
	}
	if got := e.LegalDestinations(chess.E7); len(got) != 2 {
		t.Fatalf("e7 after e4: %v", got)
	}
}

func TestEndOnNoLegalMoves(t *testing.T) {
	e := NewEngine(Options{EndOnNoLegalMoves: true})

	play(t, e, "f2f3", "e7e5", "g2g4", "d8h4")
	if !e.InCheck() {
		t.Fatalf("expected check")
	}
	if e.State() != StateOver || e.Outcome() != Draw {
		t.Fatalf("checkmate with level score: %v %v", e.State(), e.Outcome())
	}

	plain := NewEngine(Options{})
	play(t, plain, "f2f3", "e7e5", "g2g4", "d8h4")
	if plain.State() != StateActive {
		t.Fatalf("checkmate ended game without the option: %v", plain.State())
	}
	_, err := plain.ApplyMove(chess.E1, chess.F2, chess.NoPieceType)
	var ime *IllegalMoveError
	if !errors.As(err, &ime) || ime.Reason != ReasonNoLegalMoves {
		t.Fatalf("expected no_legal_moves, got %v", err)
	}
}

func TestEvaluationRequests(t *testing.T) {
	req := &recordingRequester{}
	e := NewEngine(Options{Evaluator: req, LimitEnabled: true})

	e.Reset()
	play(t, e, "e2e4")
	_ = e.LoadFEN("bad")
	e.RequestEvaluation()

	want := []bool{true, true, false}
	if !slices.Equal(req.calls, want) {
		t.Fatalf("calls: got %v want %v", req.calls, want)
	}
	if req.fens[1] != e.FEN() {
		t.Fatalf("fen after move: got %q", req.fens[1])
	}
}

func TestSnapshotRestore(t *testing.T) {
	e := newTestEngine(t, "1r5k/P7/8/8/8/8/8/K7 w - - 0 1", true)
	if _, err := e.ApplyMove(chess.A7, chess.B8, chess.NoPieceType); err != nil {
		t.Fatalf("apply: %v", err)
	}
	snap := e.Snapshot()

	restored := NewEngine(Options{})
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.State() != StatePromotionPending {
		t.Fatalf("pending lost: %v", restored.State())
	}
	play(t, restored, "a7b8q", "h8g7")
	snap = restored.Snapshot()

	again := NewEngine(Options{})
	if err := again.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if again.Score() != (Score{White: 5}) || again.MovesMade() != 2 || again.FEN() != restored.FEN() {
		t.Fatalf("replay mismatch: %+v %d %s", again.Score(), again.MovesMade(), again.FEN())
	}
	if !again.Limit().Enabled {
		t.Fatalf("limit not restored")
	}
}

func TestRestoreRejectsIllegalHistory(t *testing.T) {
	e := newTestEngine(t, "", true)
	play(t, e, "e2e4")
	before := e.FEN()

	err := e.Restore(Snapshot{Moves: []string{"e2e4", "e2e4"}})
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	if e.FEN() != before || e.MovesMade() != 1 {
		t.Fatalf("engine changed on failed restore")
	}
}

func TestLoadFENRejectsUnplayablePositions(t *testing.T) {
	tests := []struct {
		name string
		fen  string
	}{
		{"empty board", "8/8/8/8/8/8/8/8 w - - 0 1"},
		{"white king missing", "4k3/8/8/8/8/8/8/8 w - - 0 1"},
		{"black king missing", "8/8/8/8/8/8/8/4K3 b - - 0 1"},
		{"two white kings", "4k3/8/8/8/8/8/8/3KK3 w - - 0 1"},
		{"side not to move in check", "4k3/4R3/8/8/8/8/8/4K3 w - - 0 1"},
		{"white pawn on eighth rank", "P3k3/8/8/8/8/8/8/4K3 w - - 0 1"},
		{"black pawn on first rank", "4k3/8/8/8/8/8/8/p3K3 w - - 0 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, "", true)
			before := e.FEN()
			if err := e.LoadFEN(tt.fen); !errors.Is(err, ErrInvalidNotation) {
				t.Fatalf("expected ErrInvalidNotation, got %v", err)
			}
			if e.FEN() != before || e.State() != StateActive {
				t.Fatalf("engine changed on rejected import: %s", e.FEN())
			}
		})
	}

	e := NewEngine(Options{})
	if err := e.Restore(Snapshot{StartFEN: "4k3/4R3/8/8/8/8/8/4K3 w - - 0 1"}); !errors.Is(err, ErrInvalidNotation) {
		t.Fatalf("restore accepted an unplayable start: %v", err)
	}
}

func TestLastCaptureSurvivesQuietMoves(t *testing.T) {
	e := newTestEngine(t, "", true)
	if e.LastCapture() != nil {
		t.Fatalf("capture before any move")
	}

	play(t, e, "e2e4", "d7d5", "e4d5")
	res := play(t, e, "g8f6")
	if res.Captured != nil {
		t.Fatalf("quiet move reported a capture: %+v", res.Captured)
	}
	last := e.LastCapture()
	if last == nil || last.Label() != "p (+1 pts)" {
		t.Fatalf("last capture after Nf6: %+v", last)
	}

	res = play(t, e, "b1c3", "f6d5")
	if res.Captured == nil || e.LastCapture().By != chess.Black {
		t.Fatalf("later capture not tracked: %+v", e.LastCapture())
	}

	e.Reset()
	if e.LastCapture() != nil {
		t.Fatalf("reset kept the last capture")
	}
}

func TestPendingPromotionCapturingQueen(t *testing.T) {
	e := newTestEngine(t, "3q3k/4P3/8/8/8/8/8/K7 w - - 0 1", true)

	res, err := e.ApplyMove(chess.E7, chess.D8, chess.NoPieceType)
	if err != nil || res.Status != StatusPromotionRequired {
		t.Fatalf("expected pending promotion, got %v %v", res.Status, err)
	}
	if e.Score() != (Score{}) || e.MovesMade() != 0 {
		t.Fatalf("pending step changed counters: %+v %d", e.Score(), e.MovesMade())
	}

	res = play(t, e, "e7d8q")
	if res.Captured == nil || res.Captured.Piece != chess.Queen || res.Captured.Value != 9 {
		t.Fatalf("capture: %+v", res.Captured)
	}
	if e.Score() != (Score{White: 9}) || e.MovesMade() != 1 {
		t.Fatalf("after promotion: %+v moves=%d", e.Score(), e.MovesMade())
	}
	if p, _ := e.PieceAt(chess.D8); p.Type() != chess.Queen || p.Color() != chess.White {
		t.Fatalf("d8: %v", p)
	}
}

func TestLegalDestinationsFollowRules(t *testing.T) {
	tests := []struct {
		name    string
		fen     string
		inCheck bool
		empty   []chess.Square
	}{
		{"pinned knight", "4k3/4r3/8/8/8/8/4N3/4K3 w - - 0 1", false, []chess.Square{chess.E2}},
		{"pinned bishop", "4k3/8/8/8/b7/8/2B5/3K4 w - - 0 1", false, nil},
		{"rook check", "4k3/4r3/8/8/8/8/3P4/R3K3 w - - 0 1", true, []chess.Square{chess.A1, chess.D2}},
		{"knight check", "4k3/8/8/8/8/3n4/8/R3K2R w KQ - 0 1", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, tt.fen, true)
			if e.InCheck() != tt.inCheck {
				t.Fatalf("in check: got %v", e.InCheck())
			}

			want := make(map[chess.Square][]chess.Square)
			for _, mv := range (LibraryRules{}).LegalMoves(e.Game()) {
				want[mv.S1()] = append(want[mv.S1()], mv.S2())
			}
			for sq := chess.Square(0); sq < 64; sq++ {
				w := want[sq]
				slices.Sort(w)
				w = slices.Compact(w)
				if got := e.LegalDestinations(sq); !slices.Equal(got, w) {
					t.Fatalf("%s: got %v want %v", sq, got, w)
				}
			}
			for _, sq := range tt.empty {
				if got := e.LegalDestinations(sq); len(got) != 0 {
					t.Fatalf("%s should have no moves: %v", sq, got)
				}
			}
		})
	}
}

func TestInCheckAfterMove(t *testing.T) {
	e := newTestEngine(t, "4k3/8/8/8/8/8/8/R3K3 w - - 0 1", true)
	if e.InCheck() {
		t.Fatalf("no check before the move")
	}
	res := play(t, e, "a1a8")
	if !res.Check || !e.InCheck() {
		t.Fatalf("Ra8+ not reported as check")
	}
	play(t, e, "e8e7")
	if e.InCheck() {
		t.Fatalf("check reported after escape")
	}
}
