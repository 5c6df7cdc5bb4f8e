package capture

import (
	"github.com/corentings/chess/v2"
)

// classify explains a rejected move using only board geometry. It is called after the
// Rules Oracle found no legal move from->to, so the final fallback is always a check-related reason.
func classify(pos *chess.Position, from, to chess.Square, anyLegal bool) *IllegalMoveError {
	board := pos.Board()
	turn := pos.Turn()

	piece := board.Piece(from)
	if piece == chess.NoPiece {
		return illegal(ReasonNoPiece, from, to, chess.NoPieceType)
	}
	pt := piece.Type()
	if piece.Color() != turn {
		return illegal(ReasonNotYourTurn, from, to, pt)
	}
	if !anyLegal {
		return illegal(ReasonNoLegalMoves, from, to, pt)
	}
	if from == to {
		return illegal(ReasonNullMove, from, to, pt)
	}
	target := board.Piece(to)
	if target != chess.NoPiece && target.Color() == turn {
		return illegal(ReasonOwnPiece, from, to, pt)
	}

	df := int(to.File()) - int(from.File())
	dr := int(to.Rank()) - int(from.Rank())

	var reason Reason
	switch pt {
	case chess.Pawn:
		reason = pawnReason(board, turn, from, to, df, dr, target != chess.NoPiece, to == pos.EnPassantSquare())
	case chess.Knight:
		if !(abs(df) == 1 && abs(dr) == 2) && !(abs(df) == 2 && abs(dr) == 1) {
			reason = ReasonKnightShape
		}
	case chess.Bishop:
		if abs(df) != abs(dr) {
			reason = ReasonBishopShape
		} else if pathBlocked(board, from, df, dr) {
			reason = ReasonPathBlocked
		}
	case chess.Rook:
		if df != 0 && dr != 0 {
			reason = ReasonRookShape
		} else if pathBlocked(board, from, df, dr) {
			reason = ReasonPathBlocked
		}
	case chess.Queen:
		if df != 0 && dr != 0 && abs(df) != abs(dr) {
			reason = ReasonQueenShape
		} else if pathBlocked(board, from, df, dr) {
			reason = ReasonPathBlocked
		}
	case chess.King:
		switch {
		case abs(df) <= 1 && abs(dr) <= 1:
			reason = ReasonKingIntoCheck
		case dr == 0 && abs(df) == 2 && from == kingHome(turn):
			reason = ReasonCastlingNotAllowed
		default:
			reason = ReasonKingShape
		}
	}
	if reason == "" {
		reason = ReasonLeavesKingInCheck
	}
	return illegal(reason, from, to, pt)
}

func pawnReason(board *chess.Board, turn chess.Color, from, to chess.Square, df, dr int, occupied, enPassant bool) Reason {
	dir, startRank := 1, 1
	if turn == chess.Black {
		dir, startRank = -1, 6
	}
	fwd := dr * dir
	switch {
	case fwd <= 0:
		return ReasonPawnDirection
	case abs(df) > 1 || fwd > 2:
		return ReasonPawnShape
	case abs(df) == 1:
		if fwd != 1 {
			return ReasonPawnShape
		}
		if !occupied && !enPassant {
			return ReasonPawnCaptureEmpty
		}
		return ""
	}
	if occupied {
		return ReasonPawnBlocked
	}
	if fwd == 2 {
		if int(from.Rank()) != startRank {
			return ReasonPawnDoubleStep
		}
		mid := squareAt(int(from.File()), int(from.Rank())+dir)
		if board.Piece(mid) != chess.NoPiece {
			return ReasonPawnBlocked
		}
	}
	return ""
}

// pathBlocked walks the squares strictly between from and from+(df,dr).
func pathBlocked(board *chess.Board, from chess.Square, df, dr int) bool {
	steps := max(abs(df), abs(dr))
	sf, sr := sign(df), sign(dr)
	f, r := int(from.File()), int(from.Rank())
	for i := 1; i < steps; i++ {
		if board.Piece(squareAt(f+sf*i, r+sr*i)) != chess.NoPiece {
			return true
		}
	}
	return false
}

func kingHome(c chess.Color) chess.Square {
	if c == chess.Black {
		return chess.E8
	}
	return chess.E1
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func sign(x int) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
