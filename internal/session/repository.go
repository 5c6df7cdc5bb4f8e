package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/capture-challenge/internal/capture"
	"github.com/park285/capture-challenge/internal/domain"
)

// Repository keeps finished games. SaveGame is an upsert keyed by session and round.
type Repository interface {
	SaveGame(ctx context.Context, g *domain.CaptureGame) error
	RecentGames(ctx context.Context, limit int) ([]*domain.CaptureGame, error)
	Close() error
}

const schema = `CREATE TABLE IF NOT EXISTS capture_games (
	session_id    TEXT NOT NULL,
	round         INTEGER NOT NULL,
	start_fen     TEXT NOT NULL,
	final_fen     TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	score_white   INTEGER NOT NULL,
	score_black   INTEGER NOT NULL,
	move_limit    INTEGER NOT NULL,
	limit_enabled BOOLEAN NOT NULL,
	moves_uci     JSONB NOT NULL,
	moves_san     JSONB NOT NULL,
	pgn           TEXT NOT NULL,
	opening_eco   TEXT NOT NULL DEFAULT '',
	opening_title TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL,
	ended_at      TIMESTAMPTZ NOT NULL,
	duration_ms   BIGINT NOT NULL,
	PRIMARY KEY (session_id, round)
)`

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := db.ExecContext(pingCtx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create capture_games: %w", err)
	}
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *PostgresRepository) SaveGame(ctx context.Context, g *domain.CaptureGame) error {
	if r == nil || r.db == nil || g == nil {
		return nil
	}
	movesUCI, _ := json.Marshal(nonNil(g.MovesUCI))
	movesSAN, _ := json.Marshal(nonNil(g.MovesSAN))

	q := `INSERT INTO capture_games (
		session_id, round, start_fen, final_fen, outcome,
		score_white, score_black, move_limit, limit_enabled,
		moves_uci, moves_san, pgn, opening_eco, opening_title,
		started_at, ended_at, duration_ms
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
	) ON CONFLICT (session_id, round) DO UPDATE SET
		final_fen=EXCLUDED.final_fen,
		outcome=EXCLUDED.outcome,
		score_white=EXCLUDED.score_white,
		score_black=EXCLUDED.score_black,
		move_limit=EXCLUDED.move_limit,
		limit_enabled=EXCLUDED.limit_enabled,
		moves_uci=EXCLUDED.moves_uci,
		moves_san=EXCLUDED.moves_san,
		pgn=EXCLUDED.pgn,
		opening_eco=EXCLUDED.opening_eco,
		opening_title=EXCLUDED.opening_title,
		ended_at=EXCLUDED.ended_at,
		duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		g.SessionID, g.Round, g.StartFEN, g.FinalFEN, g.Outcome,
		g.ScoreWhite, g.ScoreBlack, g.MoveLimit, g.LimitEnabled,
		string(movesUCI), string(movesSAN), g.PGN, g.OpeningECO, g.OpeningTitle,
		g.StartedAt, g.EndedAt, g.Duration.Milliseconds(),
	)
	return err
}

func (r *PostgresRepository) RecentGames(ctx context.Context, limit int) ([]*domain.CaptureGame, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT
		session_id, round, start_fen, final_fen, outcome,
		score_white, score_black, move_limit, limit_enabled,
		moves_uci, moves_san, pgn, opening_eco, opening_title,
		started_at, ended_at, duration_ms
	FROM capture_games ORDER BY ended_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.CaptureGame
	for rows.Next() {
		var (
			g                  domain.CaptureGame
			movesUCI, movesSAN []byte
			durationMS         int64
		)
		if err := rows.Scan(
			&g.SessionID, &g.Round, &g.StartFEN, &g.FinalFEN, &g.Outcome,
			&g.ScoreWhite, &g.ScoreBlack, &g.MoveLimit, &g.LimitEnabled,
			&movesUCI, &movesSAN, &g.PGN, &g.OpeningECO, &g.OpeningTitle,
			&g.StartedAt, &g.EndedAt, &durationMS,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(movesUCI, &g.MovesUCI); err != nil {
			return nil, fmt.Errorf("decode moves_uci: %w", err)
		}
		if err := json.Unmarshal(movesSAN, &g.MovesSAN); err != nil {
			return nil, fmt.Errorf("decode moves_san: %w", err)
		}
		g.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, &g)
	}
	return out, rows.Err()
}

// MemoryRepository is the development fallback when no database is configured.
type MemoryRepository struct {
	mu    sync.RWMutex
	games map[string]*domain.CaptureGame
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{games: make(map[string]*domain.CaptureGame)}
}

func (m *MemoryRepository) SaveGame(_ context.Context, g *domain.CaptureGame) error {
	if g == nil {
		return nil
	}
	copy := *g
	m.mu.Lock()
	m.games[fmt.Sprintf("%s|%d", g.SessionID, g.Round)] = &copy
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepository) RecentGames(_ context.Context, limit int) ([]*domain.CaptureGame, error) {
	m.mu.RLock()
	items := make([]*domain.CaptureGame, 0, len(m.games))
	for _, g := range m.games {
		copy := *g
		items = append(items, &copy)
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].SessionID < items[j].SessionID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *MemoryRepository) Close() error { return nil }

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func outcomeToPGN(o capture.Outcome) string {
	switch o {
	case capture.WhiteWins:
		return "1-0"
	case capture.BlackWins:
		return "0-1"
	case capture.Draw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// buildPGN writes the SAN list with headers. A FEN header is added for imported positions.
func buildPGN(g *domain.CaptureGame, standardStart bool) string {
	var b strings.Builder
	date := g.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	result := outcomeToPGN(capture.Outcome(g.Outcome))

	b.WriteString("[Event \"Capture Challenge\"]\n")
	b.WriteString("[Site \"capture-challenge\"]\n")
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[Round \"%d\"]\n", g.Round)
	b.WriteString("[White \"White\"]\n[Black \"Black\"]\n")
	fmt.Fprintf(&b, "[Result \"%s\"]\n", result)
	if !standardStart {
		b.WriteString("[SetUp \"1\"]\n")
		fmt.Fprintf(&b, "[FEN \"%s\"]\n", g.StartFEN)
	}
	if g.OpeningECO != "" {
		fmt.Fprintf(&b, "[ECO \"%s\"]\n", g.OpeningECO)
	}
	fmt.Fprintf(&b, "[Annotator \"capture score %d-%d\"]\n\n", g.ScoreWhite, g.ScoreBlack)

	moves := g.MovesSAN
	turn, blackFirst := fenMoveNumber(g.StartFEN)
	if blackFirst && len(moves) > 0 {
		fmt.Fprintf(&b, "%d... %s ", turn, strings.TrimSpace(moves[0]))
		moves = moves[1:]
		turn++
	}
	for i := 0; i < len(moves); i += 2 {
		fmt.Fprintf(&b, "%d. %s ", turn, strings.TrimSpace(moves[i]))
		if i+1 < len(moves) {
			b.WriteString(strings.TrimSpace(moves[i+1]))
			b.WriteString(" ")
		}
		turn++
	}
	b.WriteString(result)
	return b.String()
}

// fenMoveNumber returns the full-move number and whether Black is to move.
func fenMoveNumber(fen string) (int, bool) {
	fields := strings.Fields(fen)
	blackFirst := len(fields) > 1 && fields[1] == "b"
	if len(fields) < 6 {
		return 1, blackFirst
	}
	n, err := strconv.Atoi(fields[5])
	if err != nil || n < 1 {
		return 1, blackFirst
	}
	return n, blackFirst
}
