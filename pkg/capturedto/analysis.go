package capturedto

import "time"

type Candidate struct {
	Move      string   `json:"move"`
	SAN       string   `json:"san,omitempty"`
	Eval      string   `json:"eval"`
	EvalCP    int      `json:"eval_cp"`
	MateIn    int      `json:"mate_in,omitempty"`
	IsMate    bool     `json:"is_mate,omitempty"`
	Depth     int      `json:"depth,omitempty"`
	Principal []string `json:"pv,omitempty"`
}

// SuggestionsResponse is empty but Available while the first analysis of a position is running.
type SuggestionsResponse struct {
	FEN        string      `json:"fen"`
	Available  bool        `json:"available"`
	Pending    bool        `json:"pending"`
	BestMove   string      `json:"best_move,omitempty"`
	Candidates []Candidate `json:"candidates"`
	BookMoves  []string    `json:"book_moves,omitempty"`
	DurationMS int64       `json:"duration_ms,omitempty"`
}
