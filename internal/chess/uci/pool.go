package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("uci pool closed")

type PoolConfig struct {
	BinaryPath string
	// Capacity bounds live processes per option set.
	Capacity int
	Logger   *zap.Logger
}

// Pool keeps warm engine processes grouped by their option set.
type Pool struct {
	binaryPath string
	capacity   int
	logger     *zap.Logger

	mu       sync.Mutex
	closed   bool
	buckets  map[string]*bucket
	sessions map[*Session]*bucket
}

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.BinaryPath == "" {
		return nil, fmt.Errorf("binary path required")
	}
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("engine binary check: %w", err)
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultCapacity()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		binaryPath: cfg.BinaryPath,
		capacity:   capacity,
		logger:     logger,
		buckets:    make(map[string]*bucket),
		sessions:   make(map[*Session]*bucket),
	}, nil
}

func (p *Pool) BinaryPath() string { return p.binaryPath }

// Acquire returns an idle session for opt, starting one if the bucket has room,
// otherwise waiting for a release or ctx.
func (p *Pool) Acquire(ctx context.Context, opt Options) (*Session, error) {
	b, err := p.bucketFor(opt)
	if err != nil {
		return nil, err
	}

	for {
		select {
		case s := <-b.idle:
			if p.ready(ctx, s) {
				p.track(s, b)
				return s, nil
			}
			continue
		default:
		}

		s, err := b.create(ctx, p.binaryPath, p.logger)
		if err == nil {
			p.logger.Debug("uci_session_started", zap.String("options", b.key))
			p.track(s, b)
			return s, nil
		}
		if !errors.Is(err, errBucketFull) {
			return nil, err
		}

		select {
		case s := <-b.idle:
			if p.ready(ctx, s) {
				p.track(s, b)
				return s, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *Pool) ready(ctx context.Context, s *Session) bool {
	if s == nil {
		return false
	}
	if err := s.EnsureReady(ctx); err != nil {
		p.logger.Debug("uci_session_stale", zap.Error(err))
		p.discard(s)
		return false
	}
	return true
}

// Release hands s back. A non-nil err means the session is in an unknown state and is closed.
func (p *Pool) Release(s *Session, err error) {
	if s == nil {
		return
	}

	p.mu.Lock()
	b, ok := p.sessions[s]
	if ok {
		delete(p.sessions, s)
	}
	closed := p.closed
	p.mu.Unlock()

	if !ok {
		_ = s.Close()
		return
	}
	if err != nil || closed || !b.put(s) {
		b.discard(s)
	}
}

func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	buckets := make([]*bucket, 0, len(p.buckets))
	for _, b := range p.buckets {
		buckets = append(buckets, b)
	}
	p.mu.Unlock()

	var errs []error
	for _, b := range buckets {
		errs = append(errs, b.drain()...)
	}
	return errors.Join(errs...)
}

func (p *Pool) track(s *Session, b *bucket) {
	p.mu.Lock()
	p.sessions[s] = b
	p.mu.Unlock()
}

func (p *Pool) discard(s *Session) {
	p.mu.Lock()
	b, ok := p.sessions[s]
	if ok {
		delete(p.sessions, s)
	}
	p.mu.Unlock()
	if ok {
		b.discard(s)
		return
	}
	_ = s.Close()
}

func (p *Pool) bucketFor(opt Options) (*bucket, error) {
	key := optionsKey(opt)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	b, ok := p.buckets[key]
	if !ok {
		b = newBucket(key, opt, p.capacity)
		p.buckets[key] = b
	}
	return b, nil
}

type bucket struct {
	key      string
	opt      Options
	capacity int

	mu    sync.Mutex
	total int
	idle  chan *Session
}

var errBucketFull = errors.New("session bucket at capacity")

func newBucket(key string, opt Options, capacity int) *bucket {
	return &bucket{
		key:      key,
		opt:      opt,
		capacity: capacity,
		idle:     make(chan *Session, capacity),
	}
}

func (b *bucket) create(ctx context.Context, binaryPath string, logger *zap.Logger) (*Session, error) {
	b.mu.Lock()
	if b.total >= b.capacity {
		b.mu.Unlock()
		return nil, errBucketFull
	}
	b.total++
	b.mu.Unlock()

	s, err := NewSession(ctx, binaryPath, b.opt, logger)
	if err != nil {
		b.decrement()
		return nil, err
	}
	return s, nil
}

func (b *bucket) put(s *Session) bool {
	select {
	case b.idle <- s:
		return true
	default:
		return false
	}
}

func (b *bucket) discard(s *Session) {
	if s != nil {
		_ = s.Close()
	}
	b.decrement()
}

func (b *bucket) drain() []error {
	var errs []error
	for {
		select {
		case s := <-b.idle:
			if s == nil {
				continue
			}
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
			b.decrement()
		default:
			return errs
		}
	}
}

func (b *bucket) decrement() {
	b.mu.Lock()
	if b.total > 0 {
		b.total--
	}
	b.mu.Unlock()
}

func optionsKey(opt Options) string {
	return fmt.Sprintf("thr=%d|hash=%d|multipv=%d|elo=%d", opt.Threads, opt.HashMB, opt.MultiPV, opt.Elo)
}

func defaultCapacity() int {
	cpu := runtime.NumCPU()
	if cpu < 2 {
		return 2
	}
	if cpu > 4 {
		return 4
	}
	return cpu
}
