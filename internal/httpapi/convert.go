package httpapi

import (
	"strings"

	chesslib "github.com/corentings/chess/v2"

	"github.com/park285/capture-challenge/internal/capture"
	"github.com/park285/capture-challenge/internal/domain"
	"github.com/park285/capture-challenge/internal/session"
	"github.com/park285/capture-challenge/pkg/capturedto"
)

func (s *Server) gameState(v session.View) capturedto.GameState {
	out := capturedto.GameState{
		ID:            v.ID,
		Round:         v.Round,
		FEN:           v.FEN,
		StartFEN:      v.StartFEN,
		Turn:          capture.ColorName(v.Turn),
		State:         string(v.State),
		Outcome:       string(v.Outcome),
		Score:         capturedto.Score{White: v.Score.White, Black: v.Score.Black},
		MovesMade:     v.MovesMade,
		Limit:         capturedto.Limit{Enabled: v.Limit.Enabled, Max: v.Limit.Max, Remaining: v.Remaining},
		InCheck:       v.InCheck,
		HasLegalMoves: v.HasLegalMoves,
		MovesUCI:      nonNil(v.MovesUCI),
		MovesSAN:      nonNil(v.MovesSAN),
		Board:         make([]capturedto.Placement, 0, len(v.Board)),
		CreatedAt:     v.CreatedAt,
		UpdatedAt:     v.UpdatedAt,
	}
	if v.Pending != nil {
		out.Pending = &capturedto.Pending{From: v.Pending.From.String(), To: v.Pending.To.String(), Since: v.Pending.Since}
	}
	if v.LastMove != nil {
		out.LastMove = v.LastMove.String()
	}
	if v.LastCapture != nil {
		out.LastCapture = captureDTO(*v.LastCapture)
	}
	if v.Opening != nil {
		out.Opening = &capturedto.Opening{ECO: v.Opening.Code, Title: v.Opening.Title}
	}
	for _, p := range v.Board {
		out.Board = append(out.Board, capturedto.Placement{
			Square: p.Square.String(),
			Color:  capture.ColorName(p.Color),
			Piece:  capture.PieceName(p.Piece),
		})
	}
	out.Status = s.statusLines(v)
	return out
}

// statusLines are the scoreboard texts: whose turn, check, budget, score, last capture.
func (s *Server) statusLines(v session.View) []string {
	turn := capitalize(capture.ColorName(v.Turn))
	var lines []string
	switch v.State {
	case capture.StateOver:
		outcome := s.cat.Text("outcome."+string(v.Outcome), nil, string(v.Outcome))
		lines = append(lines, s.cat.Text("status.over", map[string]string{"Outcome": outcome}, "Game over: "+outcome))
	case capture.StatePromotionPending:
		data := map[string]string{"From": v.Pending.From.String(), "To": v.Pending.To.String()}
		lines = append(lines, s.cat.Text("status.promotion", data, "Choose a promotion piece"))
	default:
		lines = append(lines, s.cat.Text("status.turn", map[string]string{"Turn": turn}, turn+" to move"))
		if v.InCheck {
			lines = append(lines, s.cat.Text("status.check", map[string]string{"Turn": turn}, turn+" is in check"))
		}
	}
	if v.Limit.Enabled {
		lines = append(lines, s.cat.Text("status.moves", map[string]int{"Made": v.MovesMade, "Max": v.Limit.Max}, ""))
	} else {
		lines = append(lines, s.cat.Text("status.moves_unlimited", map[string]int{"Made": v.MovesMade}, ""))
	}
	lines = append(lines, s.cat.Text("status.score", map[string]int{"White": v.Score.White, "Black": v.Score.Black}, ""))
	if v.LastMove != nil {
		lines = append(lines, s.cat.Text("game.last_move", map[string]string{"Move": v.LastMove.String()}, ""))
	}
	if v.LastCapture != nil {
		lines = append(lines, s.cat.Text("game.last_capture", map[string]string{"Label": v.LastCapture.Label()}, ""))
	} else {
		lines = append(lines, s.cat.Text("game.no_captures", nil, "No captures yet"))
	}
	return compact(lines)
}

func captureDTO(c capture.Capture) *capturedto.Capture {
	return &capturedto.Capture{
		By:    capture.ColorName(c.By),
		Piece: capture.PieceName(c.Piece),
		Value: c.Value,
		Label: c.Label(),
	}
}

func suggestionsDTO(sg session.Suggestion) capturedto.SuggestionsResponse {
	out := capturedto.SuggestionsResponse{
		FEN:        sg.FEN,
		Available:  sg.Available,
		Pending:    sg.Pending,
		Candidates: []capturedto.Candidate{},
	}
	if sg.Result == nil {
		return out
	}
	res := sg.Result
	out.BestMove = res.BestMove
	out.BookMoves = res.BookMoves
	out.DurationMS = res.Duration.Milliseconds()

	pos := positionFromFEN(sg.FEN)
	for _, c := range res.Candidates {
		out.Candidates = append(out.Candidates, capturedto.Candidate{
			Move:      c.Move,
			SAN:       sanFor(pos, c.Move),
			Eval:      c.Label(),
			EvalCP:    c.EvalCP,
			MateIn:    c.MateIn,
			IsMate:    c.IsMate,
			Depth:     c.Depth,
			Principal: c.Principal,
		})
	}
	return out
}

func finishedDTO(g *domain.CaptureGame) capturedto.FinishedGame {
	out := capturedto.FinishedGame{
		SessionID: g.SessionID,
		Round:     g.Round,
		Outcome:   g.Outcome,
		Score:     capturedto.Score{White: g.ScoreWhite, Black: g.ScoreBlack},
		MovesSAN:  nonNil(g.MovesSAN),
		PGN:       g.PGN,
		StartedAt: g.StartedAt,
		EndedAt:   g.EndedAt,
	}
	if g.OpeningECO != "" {
		out.Opening = &capturedto.Opening{ECO: g.OpeningECO, Title: g.OpeningTitle}
	}
	return out
}

func positionFromFEN(fen string) *chesslib.Position {
	opt, err := chesslib.FEN(fen)
	if err != nil {
		return nil
	}
	return chesslib.NewGame(opt).Position()
}

// sanFor converts an engine move to SAN; empty when it does not fit the position.
func sanFor(pos *chesslib.Position, uci string) string {
	if pos == nil {
		return ""
	}
	mv, err := chesslib.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return ""
	}
	return chesslib.AlgebraicNotation{}.Encode(pos, mv)
}

func squareText(sq chesslib.Square) string {
	if sq < 0 || sq > 63 {
		return "-"
	}
	return sq.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func compact(lines []string) []string {
	out := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}
