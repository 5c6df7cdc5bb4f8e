package openingbook

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	chesslib "github.com/corentings/chess/v2"
)

type Result struct {
	Move   string
	SAN    string
	Weight uint16
}

// Book answers "what do strong players play here" from a Polyglot file.
type Book struct {
	path  string
	book  *chesslib.PolyglotBook
	minWt uint16
}

type Options struct {
	// MinWeight drops rarely played entries.
	MinWeight uint16
}

func Open(path string, opts Options) (*Book, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("polyglot book path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open polyglot book %q: %w", path, err)
	}
	defer file.Close()

	book, err := chesslib.LoadFromReader(file)
	if err != nil {
		return nil, fmt.Errorf("load polyglot book %q: %w", path, err)
	}
	minWt := opts.MinWeight
	if minWt == 0 {
		minWt = 1
	}
	return &Book{path: path, book: book, minWt: minWt}, nil
}

func (b *Book) Path() string {
	if b == nil {
		return ""
	}
	return b.path
}

// Lookup returns the book moves for fen ordered by weight. A nil Book has no moves.
func (b *Book) Lookup(fen string) ([]Result, error) {
	if b == nil || b.book == nil {
		return nil, nil
	}
	game, err := gameFromFEN(fen)
	if err != nil {
		return nil, err
	}

	hashStr, err := chesslib.NewZobristHasher().HashPosition(game.FEN())
	if err != nil {
		return nil, fmt.Errorf("compute polyglot hash: %w", err)
	}
	entries := b.book.FindMoves(chesslib.ZobristHashToUint64(hashStr))

	results := make([]Result, 0, len(entries))
	algebraic := chesslib.AlgebraicNotation{}
	for _, entry := range entries {
		if entry.Weight < b.minWt {
			continue
		}
		move := chesslib.DecodeMove(entry.Move).ToMove()
		uciMove := move.String()

		verify := game.Clone()
		if err := verify.PushNotationMove(uciMove, chesslib.UCINotation{}, nil); err != nil {
			// polyglot encodes castling as king-takes-rook; skip anything the rules reject
			continue
		}
		results = append(results, Result{
			Move:   uciMove,
			SAN:    algebraic.Encode(game.Position(), &move),
			Weight: entry.Weight,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Weight > results[j].Weight })
	return results, nil
}

// ResolvePath picks the configured file, else the first default location that exists.
// An empty result with a nil error means no book is installed.
func ResolvePath(configured string) (string, error) {
	if configured != "" {
		if exists(configured) {
			return configured, nil
		}
		return "", fmt.Errorf("opening book points to missing file: %s", configured)
	}
	for _, candidate := range defaultBookPaths() {
		if exists(candidate) {
			return candidate, nil
		}
	}
	return "", nil
}

func defaultBookPaths() []string {
	return []string{
		filepath.Join("resources", "opening", "book.bin"),
		filepath.Join("/usr", "share", "capture-challenge", "book.bin"),
	}
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func gameFromFEN(fen string) (*chesslib.Game, error) {
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		return chesslib.NewGame(), nil
	}
	option, err := chesslib.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	return chesslib.NewGame(option), nil
}
