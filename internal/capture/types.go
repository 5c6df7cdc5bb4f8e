package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/corentings/chess/v2"
)

// DefaultMoveLimit is the move budget applied whenever the limit is switched on.
const DefaultMoveLimit = 12

// Outcome is the result of a capture game.
type Outcome string

const (
	InProgress Outcome = "in_progress"
	WhiteWins  Outcome = "white_wins"
	BlackWins  Outcome = "black_wins"
	Draw       Outcome = "draw"
)

// State is the coarse lifecycle state of an Engine.
type State string

const (
	StateActive           State = "active"
	StatePromotionPending State = "promotion_pending"
	StateOver             State = "over"
)

// MoveStatus tells the caller what ApplyMove did.
type MoveStatus string

const (
	StatusApplied           MoveStatus = "applied"
	StatusPromotionRequired MoveStatus = "promotion_required"
)

var pieceValues = map[chess.PieceType]int{
	chess.Pawn:   1,
	chess.Knight: 3,
	chess.Bishop: 3,
	chess.Rook:   5,
	chess.Queen:  9,
	chess.King:   0,
}

// PieceValue returns the capture value of a piece kind.
func PieceValue(pt chess.PieceType) int {
	return pieceValues[pt]
}

type Score struct {
	White int `json:"white"`
	Black int `json:"black"`
}

func (s *Score) credit(c chess.Color, points int) {
	if c == chess.White {
		s.White += points
		return
	}
	s.Black += points
}

// decide compares totals once the budget is spent. Material left on the board is not a tiebreak.
func (s Score) decide() Outcome {
	switch {
	case s.White > s.Black:
		return WhiteWins
	case s.Black > s.White:
		return BlackWins
	default:
		return Draw
	}
}

type MoveLimit struct {
	Enabled bool `json:"enabled"`
	Max     int  `json:"max"`
}

// Exhausted reports whether movesMade has used up an enabled budget.
func (l MoveLimit) Exhausted(movesMade int) bool {
	return l.Enabled && movesMade >= l.Max
}

// Remaining returns -1 when the budget is unbounded.
func (l MoveLimit) Remaining(movesMade int) int {
	if !l.Enabled {
		return -1
	}
	if movesMade >= l.Max {
		return 0
	}
	return l.Max - movesMade
}

// Move is an origin/destination pair with an optional promotion kind.
type Move struct {
	From      chess.Square
	To        chess.Square
	Promotion chess.PieceType
}

// String returns the move in UCI form, e.g. "e7e8q".
func (m Move) String() string {
	s := m.From.String() + m.To.String()
	if m.Promotion != chess.NoPieceType {
		s += promotionLetter(m.Promotion)
	}
	return s
}

type PendingPromotion struct {
	From  chess.Square
	To    chess.Square
	Since time.Time
}

type Capture struct {
	By    chess.Color
	Piece chess.PieceType
	Value int
}

// Label renders the capture the way the scoreboard shows it, e.g. "q (+9 pts)".
func (c Capture) Label() string {
	return fmt.Sprintf("%s (+%d pts)", pieceLetter(c.Piece, c.By.Other()), c.Value)
}

type MoveResult struct {
	Status   MoveStatus
	Move     Move
	SAN      string
	Captured *Capture
	Score    Score
	Outcome  Outcome
	Check    bool
}

// Placement is one occupied square, for clients that draw the board themselves.
type Placement struct {
	Square chess.Square
	Color  chess.Color
	Piece  chess.PieceType
}

// ParseSquare converts algebraic coordinates such as "e4" into a square.
func ParseSquare(s string) (chess.Square, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 {
		return chess.NoSquare, false
	}
	file := int(s[0]) - 'a'
	rank := int(s[1]) - '1'
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return chess.NoSquare, false
	}
	return chess.Square(rank*8 + file), true
}

// ParsePromotion accepts a letter or a full name; ok is false for anything else.
// An empty string is a valid "no choice".
func ParsePromotion(s string) (chess.PieceType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return chess.NoPieceType, true
	case "q", "queen":
		return chess.Queen, true
	case "r", "rook":
		return chess.Rook, true
	case "b", "bishop":
		return chess.Bishop, true
	case "n", "knight":
		return chess.Knight, true
	case "k", "king":
		return chess.King, true
	case "p", "pawn":
		return chess.Pawn, true
	default:
		return chess.NoPieceType, false
	}
}

func validSquare(sq chess.Square) bool {
	return sq >= 0 && sq < 64
}

func squareAt(file, rank int) chess.Square {
	return chess.Square(rank*8 + file)
}

func PieceName(pt chess.PieceType) string {
	switch pt {
	case chess.King:
		return "king"
	case chess.Queen:
		return "queen"
	case chess.Rook:
		return "rook"
	case chess.Bishop:
		return "bishop"
	case chess.Knight:
		return "knight"
	case chess.Pawn:
		return "pawn"
	default:
		return ""
	}
}

func ColorName(c chess.Color) string {
	switch c {
	case chess.White:
		return "white"
	case chess.Black:
		return "black"
	default:
		return ""
	}
}

func promotionLetter(pt chess.PieceType) string {
	switch pt {
	case chess.Queen:
		return "q"
	case chess.Rook:
		return "r"
	case chess.Bishop:
		return "b"
	case chess.Knight:
		return "n"
	case chess.King:
		return "k"
	case chess.Pawn:
		return "p"
	default:
		return ""
	}
}

// pieceLetter follows FEN case: upper for white, lower for black.
func pieceLetter(pt chess.PieceType, c chess.Color) string {
	l := promotionLetter(pt)
	if c == chess.White {
		return strings.ToUpper(l)
	}
	return l
}
