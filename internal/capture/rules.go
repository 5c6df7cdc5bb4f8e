package capture

import (
	"github.com/corentings/chess/v2"
)

// RulesOracle decides move legality and check. The engine never encodes chess rules itself.
type RulesOracle interface {
	LegalMoves(g *chess.Game) []chess.Move
	InCheck(g *chess.Game) bool
}

// LibraryRules answers from corentings/chess.
type LibraryRules struct{}

func (LibraryRules) LegalMoves(g *chess.Game) []chess.Move {
	moves := g.ValidMoves()
	out := make([]chess.Move, len(moves))
	copy(out, moves)
	return out
}

// InCheck reads the library's check tag on the last move. A position imported
// without history has no tagged move, and corentings/chess keeps its own check
// test unexported, so that case falls back to an attack scan of the king square.
func (LibraryRules) InCheck(g *chess.Game) bool {
	if moves := g.Moves(); len(moves) > 0 {
		return moves[len(moves)-1].HasTag(chess.Check)
	}
	pos := g.Position()
	if pos == nil {
		return false
	}
	return kingAttacked(pos.Board(), pos.Turn())
}

func kingAttacked(board *chess.Board, c chess.Color) bool {
	king := findKing(board, c)
	if king == chess.NoSquare {
		return false
	}
	return attacked(board, king, c.Other())
}

func findKing(board *chess.Board, c chess.Color) chess.Square {
	for sq := chess.Square(0); sq < 64; sq++ {
		p := board.Piece(sq)
		if p.Type() == chess.King && p.Color() == c {
			return sq
		}
	}
	return chess.NoSquare
}

var (
	knightJumps = [8][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps   = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	diagonals   = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	orthogonals = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
)

func pieceOn(board *chess.Board, file, rank int) (chess.Piece, bool) {
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return chess.NoPiece, false
	}
	return board.Piece(squareAt(file, rank)), true
}

func attacked(board *chess.Board, sq chess.Square, by chess.Color) bool {
	f, r := int(sq.File()), int(sq.Rank())

	pawnRank := r - 1
	if by == chess.Black {
		pawnRank = r + 1
	}
	for _, df := range []int{-1, 1} {
		if p, ok := pieceOn(board, f+df, pawnRank); ok && p.Type() == chess.Pawn && p.Color() == by {
			return true
		}
	}
	for _, d := range knightJumps {
		if p, ok := pieceOn(board, f+d[0], r+d[1]); ok && p.Type() == chess.Knight && p.Color() == by {
			return true
		}
	}
	for _, d := range kingSteps {
		if p, ok := pieceOn(board, f+d[0], r+d[1]); ok && p.Type() == chess.King && p.Color() == by {
			return true
		}
	}
	if slidingAttack(board, f, r, by, diagonals[:], chess.Bishop) {
		return true
	}
	return slidingAttack(board, f, r, by, orthogonals[:], chess.Rook)
}

func slidingAttack(board *chess.Board, f, r int, by chess.Color, dirs [][2]int, slider chess.PieceType) bool {
	for _, d := range dirs {
		for i := 1; ; i++ {
			p, ok := pieceOn(board, f+d[0]*i, r+d[1]*i)
			if !ok {
				break
			}
			if p == chess.NoPiece {
				continue
			}
			if p.Color() == by && (p.Type() == slider || p.Type() == chess.Queen) {
				return true
			}
			break
		}
	}
	return false
}
