package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	chesslib "github.com/corentings/chess/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/capture-challenge/internal/advisor"
	"github.com/park285/capture-challenge/internal/capture"
	"github.com/park285/capture-challenge/internal/chess"
	"github.com/park285/capture-challenge/internal/chess/openingbook"
	"github.com/park285/capture-challenge/internal/domain"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrClosed          = errors.New("session service closed")
)

var standardFEN = chesslib.NewGame().FEN()

type Config struct {
	Store      Store
	Repository Repository
	// Evaluator may be nil; games then never get suggestions.
	Evaluator chess.Evaluator
	Advisor   advisor.Config

	LimitEnabled      bool
	EndOnNoLegalMoves bool

	PersistTimeout time.Duration
	// IdleTimeout drops games from memory after this long without a request.
	// Their snapshot stays in the store. Zero keeps games until Close.
	IdleTimeout time.Duration
	Logger      *zap.Logger
	Clock          func() time.Time
}

// View is a consistent read of one game taken under its lock.
type View struct {
	ID            string
	Round         int
	FEN           string
	StartFEN      string
	Turn          chesslib.Color
	State         capture.State
	Outcome       capture.Outcome
	Score         capture.Score
	MovesMade     int
	Limit         capture.MoveLimit
	Remaining     int
	InCheck       bool
	HasLegalMoves bool
	Pending       *capture.PendingPromotion
	LastMove      *capture.Move
	LastCapture   *capture.Capture
	MovesUCI      []string
	MovesSAN      []string
	Opening       *openingbook.Opening
	Board         []capture.Placement
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Suggestion struct {
	FEN       string
	Available bool
	Pending   bool
	Result    *chess.EvaluateResult
}

// Service owns live games by ID. Every operation on a game runs under that game's lock.
type Service struct {
	store          Store
	repo           Repository
	eval           chess.Evaluator
	advisorCfg     advisor.Config
	limitEnabled   bool
	endOnNoLegal   bool
	persistTimeout time.Duration
	idleTimeout    time.Duration
	logger         *zap.Logger
	now            func() time.Time

	mu     sync.Mutex
	games  map[string]*game
	closed bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

type liveness int

const (
	live liveness = iota
	closedGame
	evictedGame
)

type game struct {
	mu      sync.Mutex
	rec     Record
	engine  *capture.Engine
	advisor *advisor.Advisor

	seen  time.Time
	dirty bool // last store write failed
	state liveness
}

func New(cfg Config) *Service {
	s := &Service{
		store:          cfg.Store,
		repo:           cfg.Repository,
		eval:           cfg.Evaluator,
		advisorCfg:     cfg.Advisor,
		limitEnabled:   cfg.LimitEnabled,
		endOnNoLegal:   cfg.EndOnNoLegalMoves,
		persistTimeout: cfg.PersistTimeout,
		idleTimeout:    cfg.IdleTimeout,
		logger:         cfg.Logger,
		now:            cfg.Clock,
		games:          make(map[string]*game),
		stopCh:         make(chan struct{}),
	}
	if s.store == nil {
		s.store = NewMemoryStore(0)
	}
	if s.repo == nil {
		s.repo = NewMemoryRepository()
	}
	if s.persistTimeout <= 0 {
		s.persistTimeout = 3 * time.Second
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.idleTimeout > 0 {
		s.wg.Add(1)
		go s.sweepLoop(max(s.idleTimeout/4, time.Second))
	}
	return s
}

func (s *Service) sweepLoop(interval time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			s.EvictIdle()
		}
	}
}

func (s *Service) newGame(id string) *game {
	logger := s.logger.With(zap.String("game_id", id))
	advCfg := s.advisorCfg
	advCfg.Logger = logger
	adv := advisor.New(s.eval, advCfg)
	eng := capture.NewEngine(capture.Options{
		Evaluator:         adv,
		Logger:            logger,
		Clock:             s.now,
		LimitEnabled:      s.limitEnabled,
		EndOnNoLegalMoves: s.endOnNoLegal,
	})
	return &game{rec: Record{ID: id}, engine: eng, advisor: adv, seen: s.now()}
}

// Create starts a game from the standard position, or from fen when it is not empty.
func (s *Service) Create(ctx context.Context, fen string) (View, error) {
	id := uuid.NewString()
	g := s.newGame(id)
	if fen != "" {
		if err := g.engine.LoadFEN(fen); err != nil {
			g.advisor.Close()
			return View{}, err
		}
	} else {
		g.engine.Reset()
	}
	now := s.now()
	g.rec.Round = 1
	g.rec.CreatedAt, g.rec.StartedAt, g.rec.UpdatedAt = now, now, now

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		g.advisor.Close()
		return View{}, ErrClosed
	}
	s.games[id] = g
	s.mu.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	s.recordIfOver(ctx, g)
	s.persist(ctx, g)
	s.logger.Info("capture_session_create",
		zap.String("game_id", id),
		zap.String("fen", g.engine.StartFEN()),
		zap.Bool("limit_enabled", g.engine.Limit().Enabled),
	)
	return s.view(g), nil
}

// lookup returns the live game, restoring it from the store when this process has not seen it.
func (s *Service) lookup(ctx context.Context, id string) (*game, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	g, ok := s.games[id]
	s.mu.Unlock()
	if ok {
		return g, nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSessionNotFound
	}

	rec, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if rec == nil {
		return nil, ErrSessionNotFound
	}
	restored := s.newGame(id)
	if err := restored.engine.Restore(rec.Snapshot); err != nil {
		restored.advisor.Close()
		return nil, fmt.Errorf("restore session %s: %w", id, err)
	}
	restored.rec = *rec
	restored.rec.Snapshot = capture.Snapshot{}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.games[id]; ok {
		restored.advisor.Close()
		return existing, nil
	}
	s.games[id] = restored
	s.logger.Debug("capture_session_restored", zap.String("game_id", id), zap.Int("moves", len(rec.Snapshot.Moves)))
	return restored, nil
}

func (s *Service) withGame(ctx context.Context, id string, fn func(g *game) error) error {
	for {
		g, err := s.lookup(ctx, id)
		if err != nil {
			return err
		}
		retry, err := s.locked(g, fn)
		if !retry {
			return err
		}
	}
}

// locked runs fn under the game's lock unless the game left memory after lookup.
// An evicted game asks for a retry, which restores it from the store.
func (s *Service) locked(g *game, fn func(g *game) error) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case closedGame:
		return false, ErrSessionNotFound
	case evictedGame:
		return true, nil
	}
	g.seen = s.now()
	return false, fn(g)
}

// mutate runs fn and, when it succeeds, records and persists the new state.
func (s *Service) mutate(ctx context.Context, id string, fn func(g *game) error) (View, error) {
	var v View
	err := s.withGame(ctx, id, func(g *game) error {
		if err := fn(g); err != nil {
			return err
		}
		g.rec.UpdatedAt = s.now()
		s.recordIfOver(ctx, g)
		s.persist(ctx, g)
		v = s.view(g)
		return nil
	})
	return v, err
}

func (s *Service) Get(ctx context.Context, id string) (View, error) {
	var v View
	err := s.withGame(ctx, id, func(g *game) error {
		v = s.view(g)
		return nil
	})
	return v, err
}

func (s *Service) Destinations(ctx context.Context, id string, from chesslib.Square) ([]chesslib.Square, error) {
	var out []chesslib.Square
	err := s.withGame(ctx, id, func(g *game) error {
		out = g.engine.LegalDestinations(from)
		return nil
	})
	return out, err
}

func (s *Service) Play(ctx context.Context, id string, from, to chesslib.Square, promo chesslib.PieceType) (capture.MoveResult, View, error) {
	var res capture.MoveResult
	v, err := s.mutate(ctx, id, func(g *game) error {
		r, err := g.engine.ApplyMove(from, to, promo)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return capture.MoveResult{}, View{}, err
	}
	return res, v, nil
}

func (s *Service) CancelPromotion(ctx context.Context, id string) (bool, View, error) {
	var cancelled bool
	v, err := s.mutate(ctx, id, func(g *game) error {
		cancelled = g.engine.CancelPromotion()
		return nil
	})
	return cancelled, v, err
}

func (s *Service) LoadFEN(ctx context.Context, id, fen string) (View, error) {
	return s.mutate(ctx, id, func(g *game) error {
		if err := g.engine.LoadFEN(fen); err != nil {
			return err
		}
		s.nextRound(g)
		return nil
	})
}

func (s *Service) Reset(ctx context.Context, id string) (View, error) {
	return s.mutate(ctx, id, func(g *game) error {
		g.engine.Reset()
		s.nextRound(g)
		return nil
	})
}

func (s *Service) ToggleLimit(ctx context.Context, id string) (View, error) {
	return s.mutate(ctx, id, func(g *game) error {
		g.engine.ToggleMoveLimit()
		return nil
	})
}

// Suggestions returns the latest analysis for the current position and asks for a
// refresh, which the game's advisor may drop inside its cooldown.
func (s *Service) Suggestions(ctx context.Context, id string) (Suggestion, error) {
	var out Suggestion
	err := s.withGame(ctx, id, func(g *game) error {
		fen := g.engine.FEN()
		out = Suggestion{FEN: fen, Available: s.eval != nil}
		if !out.Available {
			return nil
		}
		if g.engine.State() != capture.StateOver {
			g.engine.RequestEvaluation()
		}
		if res, ok := g.advisor.Latest(fen); ok {
			out.Result = &res
		}
		out.Pending = g.advisor.Pending()
		return nil
	})
	return out, err
}

// Close forgets the game both in memory and in the store.
func (s *Service) Close(ctx context.Context, id string) error {
	s.mu.Lock()
	g, ok := s.games[id]
	delete(s.games, id)
	s.mu.Unlock()

	if ok {
		g.mu.Lock()
		g.state = closedGame
		g.advisor.Close()
		g.mu.Unlock()
	} else {
		rec, err := s.store.Load(ctx, id)
		if err != nil {
			return fmt.Errorf("load session %s: %w", id, err)
		}
		if rec == nil {
			return ErrSessionNotFound
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	s.logger.Info("capture_session_close", zap.String("game_id", id))
	return nil
}

func (s *Service) RecentGames(ctx context.Context, limit int) ([]*domain.CaptureGame, error) {
	return s.repo.RecentGames(ctx, limit)
}

// EvictIdle drops games that have seen no request for the idle timeout and
// reports how many went. Games whose last store write failed are kept.
func (s *Service) EvictIdle() int {
	if s.idleTimeout <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idleTimeout)

	s.mu.Lock()
	games := make([]*game, 0, len(s.games))
	for _, g := range s.games {
		games = append(games, g)
	}
	s.mu.Unlock()

	evicted := 0
	for _, g := range games {
		if s.evict(g, cutoff) {
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Debug("capture_sessions_evicted", zap.Int("count", evicted))
	}
	return evicted
}

func (s *Service) evict(g *game, cutoff time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != live || g.dirty || g.seen.After(cutoff) {
		return false
	}
	g.state = evictedGame
	g.advisor.Close()
	s.mu.Lock()
	if s.games[g.rec.ID] == g {
		delete(s.games, g.rec.ID)
	}
	s.mu.Unlock()
	return true
}

// Shutdown cancels every in-flight evaluation. Store and repository are left to their owner.
func (s *Service) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.stopCh)
	games := make([]*game, 0, len(s.games))
	for _, g := range s.games {
		games = append(games, g)
	}
	s.games = make(map[string]*game)
	s.mu.Unlock()

	s.wg.Wait()
	for _, g := range games {
		g.advisor.Close()
	}
}

func (s *Service) nextRound(g *game) {
	g.rec.Round++
	g.rec.Recorded = false
	g.rec.StartedAt = s.now()
}

func (s *Service) persist(ctx context.Context, g *game) {
	if g.state == closedGame {
		return
	}
	rec := g.rec
	rec.Snapshot = g.engine.Snapshot()
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()
	err := s.store.Save(pctx, &rec)
	g.dirty = err != nil
	if err != nil {
		s.logger.Warn("capture_session_persist_failed", zap.String("game_id", rec.ID), zap.Error(err))
	}
}

// recordIfOver writes the finished game once per round.
func (s *Service) recordIfOver(ctx context.Context, g *game) {
	if g.rec.Recorded || g.engine.State() != capture.StateOver {
		return
	}
	rec := s.finishedGame(g)
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()
	if err := s.repo.SaveGame(pctx, rec); err != nil {
		s.logger.Warn("capture_game_record_failed", zap.String("game_id", g.rec.ID), zap.Error(err))
		return
	}
	g.rec.Recorded = true
	s.logger.Info("capture_game_recorded",
		zap.String("game_id", g.rec.ID),
		zap.Int("round", g.rec.Round),
		zap.String("outcome", rec.Outcome),
	)
}

func (s *Service) finishedGame(g *game) *domain.CaptureGame {
	e := g.engine
	ended := s.now()
	score := e.Score()
	limit := e.Limit()
	rec := &domain.CaptureGame{
		SessionID:    g.rec.ID,
		Round:        g.rec.Round,
		StartFEN:     e.StartFEN(),
		FinalFEN:     e.FEN(),
		Outcome:      string(e.Outcome()),
		ScoreWhite:   score.White,
		ScoreBlack:   score.Black,
		MoveLimit:    limit.Max,
		LimitEnabled: limit.Enabled,
		MovesUCI:     e.MovesUCI(),
		MovesSAN:     e.MovesSAN(),
		StartedAt:    g.rec.StartedAt,
		EndedAt:      ended,
		Duration:     max(ended.Sub(g.rec.StartedAt), 0),
	}
	standard := rec.StartFEN == standardFEN
	if op := s.opening(g); op != nil {
		rec.OpeningECO, rec.OpeningTitle = op.Code, op.Title
	}
	rec.PGN = buildPGN(rec, standard)
	return rec
}

func (s *Service) opening(g *game) *openingbook.Opening {
	if g.engine.StartFEN() != standardFEN {
		return nil
	}
	op, ok := openingbook.Classify(g.engine.Game())
	if !ok {
		return nil
	}
	return &op
}

func (s *Service) view(g *game) View {
	e := g.engine
	return View{
		ID:            g.rec.ID,
		Round:         g.rec.Round,
		FEN:           e.FEN(),
		StartFEN:      e.StartFEN(),
		Turn:          e.Turn(),
		State:         e.State(),
		Outcome:       e.Outcome(),
		Score:         e.Score(),
		MovesMade:     e.MovesMade(),
		Limit:         e.Limit(),
		Remaining:     e.Remaining(),
		InCheck:       e.InCheck(),
		HasLegalMoves: e.HasLegalMoves(),
		Pending:       e.Pending(),
		LastMove:      e.LastMove(),
		LastCapture:   e.LastCapture(),
		MovesUCI:      e.MovesUCI(),
		MovesSAN:      e.MovesSAN(),
		Opening:       s.opening(g),
		Board:         e.Board(),
		CreatedAt:     g.rec.CreatedAt,
		UpdatedAt:     g.rec.UpdatedAt,
	}
}
