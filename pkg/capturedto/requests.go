package capturedto

type CreateGameRequest struct {
	FEN string `json:"fen,omitempty"`
}

// MoveRequest carries squares in algebraic form. Promotion is a letter or piece name and may be empty.
type MoveRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type FENRequest struct {
	FEN string `json:"fen"`
}
