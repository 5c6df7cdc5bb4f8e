package capturedto

import "time"

type FinishedGame struct {
	SessionID string    `json:"session_id"`
	Round     int       `json:"round"`
	Outcome   string    `json:"outcome"`
	Score     Score     `json:"score"`
	MovesSAN  []string  `json:"moves_san"`
	PGN       string    `json:"pgn"`
	Opening   *Opening  `json:"opening,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}
