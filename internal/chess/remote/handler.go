package remote

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/capture-challenge/internal/chess"
)

// Handler serves an Evaluator to remote Clients. Each connection is handled
// sequentially, one request at a time.
type Handler struct {
	eval   chess.Evaluator
	logger *zap.Logger
}

func NewHandler(eval chess.Evaluator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{eval: eval, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		h.logger.Warn("remote_accept_failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	ctx := r.Context()
	for {
		var req request
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			h.logger.Debug("remote_read_ended", zap.Error(err))
			return
		}

		resp := response{ID: req.ID}
		res, err := h.eval.Evaluate(ctx, chess.EvaluateRequest{FEN: req.FEN, Limits: req.Limits, MultiPV: req.MultiPV})
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Result = res
		}
		if err := wsjson.Write(ctx, conn, resp); err != nil {
			h.logger.Debug("remote_write_failed", zap.Error(err))
			return
		}
	}
}
