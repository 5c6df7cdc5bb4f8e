package openingbook

import (
	"sync"

	chesslib "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

type Opening struct {
	Code  string `json:"eco"`
	Title string `json:"title"`
}

// Classify names the opening reached by the game's move list. Games imported
// from a FEN other than the start position have no ECO classification.
func Classify(game *chesslib.Game) (Opening, bool) {
	if game == nil {
		return Opening{}, false
	}
	moves := game.Moves()
	if len(moves) == 0 {
		return Opening{}, false
	}
	ecoOnce.Do(func() {
		ecoBook = opening.NewBookECO()
	})
	eco := ecoBook.Find(moves)
	if eco == nil {
		return Opening{}, false
	}
	return Opening{Code: eco.Code(), Title: eco.Title()}, true
}
