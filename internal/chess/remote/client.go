package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/capture-challenge/internal/chess"
)

type request struct {
	ID      uint64       `json:"id"`
	FEN     string       `json:"fen"`
	Limits  chess.Limits `json:"limits"`
	MultiPV int          `json:"multipv"`
}

type response struct {
	ID     uint64               `json:"id"`
	Result chess.EvaluateResult `json:"result"`
	Error  string               `json:"error,omitempty"`
}

type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// Client is an Evaluator backed by an analysis host reachable over a websocket.
// Requests are serialized on one connection; a failed exchange drops the connection
// and the next call redials.
type Client struct {
	url         string
	dialTimeout time.Duration
	logger      *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID uint64
}

func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:         url,
		dialTimeout: 10 * time.Second,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Evaluate(ctx context.Context, req chess.EvaluateRequest) (chess.EvaluateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connect(ctx)
	if err != nil {
		return chess.EvaluateResult{}, fmt.Errorf("%w: dial %s: %v", chess.ErrEngineUnavailable, c.url, err)
	}

	c.nextID++
	id := c.nextID
	if err := wsjson.Write(ctx, conn, request{ID: id, FEN: req.FEN, Limits: req.Limits, MultiPV: req.MultiPV}); err != nil {
		c.drop(websocket.StatusGoingAway, "write failed")
		return chess.EvaluateResult{}, c.mapErr(ctx, err)
	}

	for {
		var resp response
		if err := wsjson.Read(ctx, conn, &resp); err != nil {
			c.drop(websocket.StatusGoingAway, "read failed")
			return chess.EvaluateResult{}, c.mapErr(ctx, err)
		}
		if resp.ID != id {
			// late answer to a request that was abandoned
			continue
		}
		if resp.Error != "" {
			return chess.EvaluateResult{}, fmt.Errorf("%w: %s", chess.ErrEngineUnavailable, resp.Error)
		}
		return resp.Result, nil
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)
	c.conn = conn
	c.logger.Info("remote_engine_connected", zap.String("url", c.url))
	return conn, nil
}

func (c *Client) drop(code websocket.StatusCode, reason string) {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close(code, reason)
	c.conn = nil
	c.logger.Warn("remote_engine_dropped", zap.String("url", c.url), zap.String("reason", reason))
}

func (c *Client) mapErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", chess.ErrEngineTimeout, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %v", chess.ErrEngineUnavailable, err)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.conn = nil
	return err
}
