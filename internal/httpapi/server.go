package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"strings"
	"time"

	chesslib "github.com/corentings/chess/v2"
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/capture-challenge/internal/capture"
	"github.com/park285/capture-challenge/internal/domain"
	"github.com/park285/capture-challenge/internal/msgcat"
	"github.com/park285/capture-challenge/internal/session"
	"github.com/park285/capture-challenge/pkg/capturedto"
)

// Games is the part of the session service the API drives.
type Games interface {
	Create(ctx context.Context, fen string) (session.View, error)
	Get(ctx context.Context, id string) (session.View, error)
	Destinations(ctx context.Context, id string, from chesslib.Square) ([]chesslib.Square, error)
	Play(ctx context.Context, id string, from, to chesslib.Square, promo chesslib.PieceType) (capture.MoveResult, session.View, error)
	CancelPromotion(ctx context.Context, id string) (bool, session.View, error)
	LoadFEN(ctx context.Context, id, fen string) (session.View, error)
	Reset(ctx context.Context, id string) (session.View, error)
	ToggleLimit(ctx context.Context, id string) (session.View, error)
	Suggestions(ctx context.Context, id string) (session.Suggestion, error)
	Close(ctx context.Context, id string) error
	RecentGames(ctx context.Context, limit int) ([]*domain.CaptureGame, error)
}

type Server struct {
	games  Games
	cat    *msgcat.Catalog
	logger *zap.Logger
	srv    *fasthttp.Server
	router *router.Router
}

func New(games Games, cat *msgcat.Catalog, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{games: games, cat: cat, logger: logger}
	s.router = s.routes()
	s.srv = &fasthttp.Server{
		Handler:            s.Handle,
		Name:               "capture-challenge",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxRequestBodySize: 64 << 10,
	}
	return s
}

func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("http_listen", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

func (s *Server) routes() *router.Router {
	r := router.New()
	r.GET("/healthz", s.health)
	r.POST("/games", s.createGame)
	r.GET("/games/finished", s.finishedGames)
	r.GET("/games/{id}", s.withID(s.getGame))
	r.DELETE("/games/{id}", s.withID(s.closeGame))
	r.GET("/games/{id}/destinations", s.withID(s.destinations))
	r.POST("/games/{id}/moves", s.withID(s.play))
	r.POST("/games/{id}/promotion/cancel", s.withID(s.cancelPromotion))
	r.POST("/games/{id}/fen", s.withID(s.loadFEN))
	r.POST("/games/{id}/reset", s.withID(s.reset))
	r.POST("/games/{id}/limit/toggle", s.withID(s.toggleLimit))
	r.GET("/games/{id}/suggestions", s.withID(s.suggestions))

	r.NotFound = func(ctx *fasthttp.RequestCtx) {
		writeError(ctx, fasthttp.StatusNotFound, capturedto.Error{Code: "not_found", Message: "no such route"})
	}
	r.MethodNotAllowed = func(ctx *fasthttp.RequestCtx) {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, capturedto.Error{Code: "method_not_allowed", Message: "method not allowed"})
	}
	return r
}

// Handle serves a request through the router. Exported so tests and embedders can mount it directly.
func (s *Server) Handle(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	defer func() {
		s.logger.Debug("http_request",
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("path", ctx.Path()),
			zap.Int("status", ctx.Response.StatusCode()),
			zap.Duration("took", time.Since(start)),
		)
	}()
	s.router.Handler(ctx)
}

func (s *Server) withID(h func(*fasthttp.RequestCtx, string)) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id, _ := ctx.UserValue("id").(string)
		h(ctx, id)
	}
}

func (s *Server) health(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createGame(ctx *fasthttp.RequestCtx) {
	var req capturedto.CreateGameRequest
	if len(ctx.PostBody()) > 0 {
		if !decode(ctx, &req) {
			return
		}
	}
	v, err := s.games.Create(ctx, strings.TrimSpace(req.FEN))
	if err != nil {
		s.fail(ctx, "", err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, s.gameState(v))
}

func (s *Server) getGame(ctx *fasthttp.RequestCtx, id string) {
	v, err := s.games.Get(ctx, id)
	if err != nil {
		s.fail(ctx, id, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, s.gameState(v))
}

func (s *Server) closeGame(ctx *fasthttp.RequestCtx, id string) {
	if err := s.games.Close(ctx, id); err != nil {
		s.fail(ctx, id, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) destinations(ctx *fasthttp.RequestCtx, id string) {
	raw := string(ctx.QueryArgs().Peek("from"))
	from, ok := capture.ParseSquare(raw)
	if !ok {
		writeError(ctx, fasthttp.StatusBadRequest, capturedto.Error{Code: "bad_request", Message: "from must be a square such as e2"})
		return
	}
	dests, err := s.games.Destinations(ctx, id, from)
	if err != nil {
		s.fail(ctx, id, err)
		return
	}
	out := capturedto.DestinationsResponse{From: from.String(), Destinations: make([]string, 0, len(dests))}
	for _, sq := range dests {
		out.Destinations = append(out.Destinations, sq.String())
	}
	writeJSON(ctx, fasthttp.StatusOK, out)
}

func (s *Server) play(ctx *fasthttp.RequestCtx, id string) {
	var req capturedto.MoveRequest
	if !decode(ctx, &req) {
		return
	}
	from, okFrom := capture.ParseSquare(req.From)
	to, okTo := capture.ParseSquare(req.To)
	if !okFrom || !okTo {
		writeError(ctx, fasthttp.StatusBadRequest, capturedto.Error{Code: "bad_request", Message: "from and to must be squares such as e2"})
		return
	}
	promo, ok := capture.ParsePromotion(req.Promotion)
	if !ok {
		s.fail(ctx, id, &capture.IllegalMoveError{Reason: capture.ReasonInvalidPromotion, From: from, To: to})
		return
	}
	res, v, err := s.games.Play(ctx, id, from, to, promo)
	if err != nil {
		s.fail(ctx, id, err)
		return
	}
	out := capturedto.MoveResponse{
		Status: string(res.Status),
		Move:   res.Move.String(),
		SAN:    res.SAN,
		Check:  res.Check,
		Game:   s.gameState(v),
	}
	if res.Captured != nil {
		out.Captured = captureDTO(*res.Captured)
	}
	status := fasthttp.StatusOK
	if res.Status == capture.StatusPromotionRequired {
		status = fasthttp.StatusAccepted
	}
	writeJSON(ctx, status, out)
}

func (s *Server) cancelPromotion(ctx *fasthttp.RequestCtx, id string) {
	cancelled, v, err := s.games.CancelPromotion(ctx, id)
	if err != nil {
		s.fail(ctx, id, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, capturedto.CancelPromotionResponse{Cancelled: cancelled, Game: s.gameState(v)})
}

func (s *Server) loadFEN(ctx *fasthttp.RequestCtx, id string) {
	var req capturedto.FENRequest
	if !decode(ctx, &req) {
		return
	}
	v, err := s.games.LoadFEN(ctx, id, strings.TrimSpace(req.FEN))
	if err != nil {
		s.fail(ctx, id, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, s.gameState(v))
}

func (s *Server) reset(ctx *fasthttp.RequestCtx, id string) {
	v, err := s.games.Reset(ctx, id)
	if err != nil {
		s.fail(ctx, id, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, s.gameState(v))
}

func (s *Server) toggleLimit(ctx *fasthttp.RequestCtx, id string) {
	v, err := s.games.ToggleLimit(ctx, id)
	if err != nil {
		s.fail(ctx, id, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, s.gameState(v))
}

func (s *Server) suggestions(ctx *fasthttp.RequestCtx, id string) {
	sg, err := s.games.Suggestions(ctx, id)
	if err != nil {
		s.fail(ctx, id, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, suggestionsDTO(sg))
}

func (s *Server) finishedGames(ctx *fasthttp.RequestCtx) {
	limit := 20
	if raw := string(ctx.QueryArgs().Peek("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			writeError(ctx, fasthttp.StatusBadRequest, capturedto.Error{Code: "bad_request", Message: "limit must be between 1 and 200"})
			return
		}
		limit = n
	}
	games, err := s.games.RecentGames(ctx, limit)
	if err != nil {
		s.fail(ctx, "", err)
		return
	}
	out := make([]capturedto.FinishedGame, 0, len(games))
	for _, g := range games {
		out = append(out, finishedDTO(g))
	}
	writeJSON(ctx, fasthttp.StatusOK, out)
}

func decode(ctx *fasthttp.RequestCtx, v any) bool {
	if err := json.Unmarshal(ctx.PostBody(), v); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, capturedto.Error{Code: "bad_request", Message: "invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.Error("encode response", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func writeError(ctx *fasthttp.RequestCtx, status int, e capturedto.Error) {
	writeJSON(ctx, status, e)
}

