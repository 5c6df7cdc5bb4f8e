package httpapi

import (
	"errors"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/capture-challenge/internal/capture"
	"github.com/park285/capture-challenge/internal/session"
	"github.com/park285/capture-challenge/pkg/capturedto"
)

// fail maps service errors onto status codes:
// invalid notation 400, illegal move 422, game over 409, unknown game 404.
func (s *Server) fail(ctx *fasthttp.RequestCtx, id string, err error) {
	var illegal *capture.IllegalMoveError
	switch {
	case errors.As(err, &illegal):
		writeError(ctx, fasthttp.StatusUnprocessableEntity, capturedto.Error{
			Code:    "illegal_move",
			Reason:  string(illegal.Reason),
			Message: s.illegalText(ctx, id, illegal),
		})
	case errors.Is(err, capture.ErrInvalidNotation):
		writeError(ctx, fasthttp.StatusBadRequest, capturedto.Error{
			Code:    "invalid_notation",
			Message: s.cat.Text("game.invalid_fen", nil, err.Error()),
		})
	case errors.Is(err, capture.ErrGameOver):
		writeError(ctx, fasthttp.StatusConflict, capturedto.Error{
			Code:    "game_over",
			Message: s.cat.Text("game.game_over", nil, err.Error()),
		})
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(ctx, fasthttp.StatusNotFound, capturedto.Error{Code: "not_found", Message: "game not found"})
	case errors.Is(err, session.ErrClosed):
		writeError(ctx, fasthttp.StatusServiceUnavailable, capturedto.Error{Code: "unavailable", Message: "server is shutting down"})
	default:
		s.logger.Error("http_internal_error", zap.String("game_id", id), zap.Error(err))
		writeError(ctx, fasthttp.StatusInternalServerError, capturedto.Error{Code: "internal", Message: "internal error"})
	}
}

func (s *Server) illegalText(ctx *fasthttp.RequestCtx, id string, e *capture.IllegalMoveError) string {
	data := map[string]string{
		"From":  squareText(e.From),
		"To":    squareText(e.To),
		"Piece": capture.PieceName(e.Piece),
	}
	if id != "" {
		if v, err := s.games.Get(ctx, id); err == nil {
			data["Turn"] = capitalize(capture.ColorName(v.Turn))
		}
	}
	return s.cat.Text("illegal."+string(e.Reason), data, e.Detail())
}
