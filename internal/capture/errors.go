package capture

import (
	"errors"
	"fmt"

	"github.com/corentings/chess/v2"
)

var (
	ErrInvalidNotation = errors.New("invalid position notation")
	ErrIllegalMove     = errors.New("illegal move")
	ErrGameOver        = errors.New("game over")
)

// Reason identifies why a move was rejected. Values are stable and used as message catalog keys.
type Reason string

const (
	ReasonOffBoard           Reason = "off_board"
	ReasonNoPiece            Reason = "no_piece"
	ReasonNotYourTurn        Reason = "not_your_turn"
	ReasonNullMove           Reason = "null_move"
	ReasonOwnPiece           Reason = "own_piece"
	ReasonPawnDirection      Reason = "pawn_direction"
	ReasonPawnShape          Reason = "pawn_shape"
	ReasonPawnDoubleStep     Reason = "pawn_double_step"
	ReasonPawnBlocked        Reason = "pawn_blocked"
	ReasonPawnCaptureEmpty   Reason = "pawn_capture_empty"
	ReasonKnightShape        Reason = "knight_shape"
	ReasonBishopShape        Reason = "bishop_shape"
	ReasonRookShape          Reason = "rook_shape"
	ReasonQueenShape         Reason = "queen_shape"
	ReasonKingShape          Reason = "king_shape"
	ReasonPathBlocked        Reason = "path_blocked"
	ReasonCastlingNotAllowed Reason = "castling_not_allowed"
	ReasonKingIntoCheck      Reason = "king_into_check"
	ReasonLeavesKingInCheck  Reason = "leaves_king_in_check"
	ReasonInvalidPromotion   Reason = "invalid_promotion"
	ReasonPromotionPending   Reason = "promotion_pending"
	ReasonNoLegalMoves       Reason = "no_legal_moves"
)

var reasonText = map[Reason]string{
	ReasonOffBoard:           "square is off the board",
	ReasonNoPiece:            "no piece on %[1]s",
	ReasonNotYourTurn:        "it is not that side's turn",
	ReasonNullMove:           "a piece must move to a different square",
	ReasonOwnPiece:           "cannot capture your own piece on %[2]s",
	ReasonPawnDirection:      "pawns only move forward",
	ReasonPawnShape:          "pawns move straight ahead or one square diagonally to capture",
	ReasonPawnDoubleStep:     "pawns only advance two squares from their starting rank",
	ReasonPawnBlocked:        "the pawn's path is blocked",
	ReasonPawnCaptureEmpty:   "pawns move diagonally only to capture",
	ReasonKnightShape:        "knights move in an L shape",
	ReasonBishopShape:        "bishops move diagonally",
	ReasonRookShape:          "rooks move in straight lines",
	ReasonQueenShape:         "queens move in straight lines or diagonally",
	ReasonKingShape:          "kings move one square in any direction",
	ReasonPathBlocked:        "the %[3]s's path is blocked",
	ReasonCastlingNotAllowed: "castling is not allowed here",
	ReasonKingIntoCheck:      "the king cannot move into check",
	ReasonLeavesKingInCheck:  "that move leaves the king in check",
	ReasonInvalidPromotion:   "invalid promotion choice",
	ReasonPromotionPending:   "finish or cancel the pending promotion on %[2]s first",
	ReasonNoLegalMoves:       "no legal moves are available",
}

// IllegalMoveError is returned by ApplyMove when the Rules Oracle rejects a move.
type IllegalMoveError struct {
	Reason Reason
	From   chess.Square
	To     chess.Square
	Piece  chess.PieceType
}

func (e *IllegalMoveError) Error() string {
	return fmt.Sprintf("illegal move %s%s: %s", squareName(e.From), squareName(e.To), e.Detail())
}

// Detail is the English explanation without the move prefix.
func (e *IllegalMoveError) Detail() string {
	format, ok := reasonText[e.Reason]
	if !ok {
		return string(e.Reason)
	}
	return fmt.Sprintf(format, squareName(e.From), squareName(e.To), PieceName(e.Piece))
}

func (e *IllegalMoveError) Is(target error) bool {
	return target == ErrIllegalMove
}

func illegal(reason Reason, from, to chess.Square, piece chess.PieceType) *IllegalMoveError {
	return &IllegalMoveError{Reason: reason, From: from, To: to, Piece: piece}
}

func squareName(sq chess.Square) string {
	if !validSquare(sq) {
		return "-"
	}
	return sq.String()
}
