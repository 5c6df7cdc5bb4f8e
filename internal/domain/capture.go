package domain

import "time"

// CaptureGame is a finished capture game as written to the results table.
type CaptureGame struct {
	SessionID    string
	Round        int
	StartFEN     string
	FinalFEN     string
	Outcome      string
	ScoreWhite   int
	ScoreBlack   int
	MoveLimit    int
	LimitEnabled bool
	MovesUCI     []string
	MovesSAN     []string
	PGN          string
	OpeningECO   string
	OpeningTitle string
	StartedAt    time.Time
	EndedAt      time.Time
	Duration     time.Duration
}
