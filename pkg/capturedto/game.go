package capturedto

import "time"

type Score struct {
	White int `json:"white"`
	Black int `json:"black"`
}

type Limit struct {
	Enabled bool `json:"enabled"`
	Max     int  `json:"max"`
	// Remaining is -1 when the limit is off.
	Remaining int `json:"remaining"`
}

type Pending struct {
	From  string    `json:"from"`
	To    string    `json:"to"`
	Since time.Time `json:"since"`
}

type Capture struct {
	By    string `json:"by"`
	Piece string `json:"piece"`
	Value int    `json:"value"`
	Label string `json:"label"`
}

type Placement struct {
	Square string `json:"square"`
	Color  string `json:"color"`
	Piece  string `json:"piece"`
}

type Opening struct {
	ECO   string `json:"eco"`
	Title string `json:"title"`
}

type GameState struct {
	ID            string      `json:"id"`
	Round         int         `json:"round"`
	FEN           string      `json:"fen"`
	StartFEN      string      `json:"start_fen"`
	Turn          string      `json:"turn"`
	State         string      `json:"state"`
	Outcome       string      `json:"outcome"`
	Score         Score       `json:"score"`
	MovesMade     int         `json:"moves_made"`
	Limit         Limit       `json:"limit"`
	InCheck       bool        `json:"in_check"`
	HasLegalMoves bool        `json:"has_legal_moves"`
	Pending       *Pending    `json:"pending,omitempty"`
	LastMove      string      `json:"last_move,omitempty"`
	LastCapture   *Capture    `json:"last_capture,omitempty"`
	MovesUCI      []string    `json:"moves_uci"`
	MovesSAN      []string    `json:"moves_san"`
	Opening       *Opening    `json:"opening,omitempty"`
	Board         []Placement `json:"board"`
	Status        []string    `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type MoveResponse struct {
	Status   string    `json:"status"`
	Move     string    `json:"move"`
	SAN      string    `json:"san,omitempty"`
	Captured *Capture  `json:"captured,omitempty"`
	Check    bool      `json:"check"`
	Game     GameState `json:"game"`
}

type DestinationsResponse struct {
	From         string   `json:"from"`
	Destinations []string `json:"destinations"`
}

type CancelPromotionResponse struct {
	Cancelled bool      `json:"cancelled"`
	Game      GameState `json:"game"`
}
