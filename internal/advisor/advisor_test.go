package advisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/capture-challenge/internal/chess"
)

const (
	fenA = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
	fenB = "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq - 0 2"
)

type fakeEvaluator struct {
	mu        sync.Mutex
	calls     []string
	block     map[string]bool
	err       error
	cancelled chan string
}

func newFakeEvaluator() *fakeEvaluator {
	return &fakeEvaluator{block: map[string]bool{}, cancelled: make(chan string, 4)}
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, req chess.EvaluateRequest) (chess.EvaluateResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.FEN)
	block, err := f.block[req.FEN], f.err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		f.cancelled <- req.FEN
		return chess.EvaluateResult{}, ctx.Err()
	}
	if err != nil {
		return chess.EvaluateResult{}, err
	}
	return chess.EvaluateResult{
		FEN:        req.FEN,
		BestMove:   "g1f3",
		Candidates: []chess.Candidate{{Move: "g1f3", EvalCP: 20}},
	}, nil
}

func (f *fakeEvaluator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func await(t *testing.T, a *Advisor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Await(ctx); err != nil {
		t.Fatalf("await: %v", err)
	}
}

func TestForcedRequestProducesLatest(t *testing.T) {
	ev := newFakeEvaluator()
	a := New(ev, Config{})
	defer a.Close()

	a.Request(fenA, true)
	await(t, a)

	res, ok := a.Latest(fenA)
	if !ok || res.BestMove != "g1f3" {
		t.Fatalf("latest: %+v %v", res, ok)
	}
	if _, ok := a.Latest(fenB); ok {
		t.Fatalf("latest must match the requested position")
	}
}

func TestCooldownDropsUnforcedRequests(t *testing.T) {
	ev := newFakeEvaluator()
	clock := &fakeClock{t: time.Unix(1000, 0)}
	a := New(ev, Config{Cooldown: time.Second, Clock: clock.Now})
	defer a.Close()

	a.Request(fenA, true)
	await(t, a)

	clock.Advance(200 * time.Millisecond)
	a.Request(fenB, false)
	await(t, a)
	if got := ev.callCount(); got != 1 {
		t.Fatalf("request inside cooldown ran: %d calls", got)
	}

	a.Request(fenB, true)
	await(t, a)
	if got := ev.callCount(); got != 2 {
		t.Fatalf("forced request skipped: %d calls", got)
	}

	clock.Advance(2 * time.Second)
	a.Request(fenB, false)
	await(t, a)
	if got := ev.callCount(); got != 2 {
		t.Fatalf("already analysed position re-ran: %d calls", got)
	}
}

func TestNewRequestSupersedesInFlight(t *testing.T) {
	ev := newFakeEvaluator()
	ev.block[fenA] = true
	a := New(ev, Config{})
	defer a.Close()

	a.Request(fenA, true)
	for ev.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	if !a.Pending() {
		t.Fatalf("expected pending evaluation")
	}

	a.Request(fenB, true)
	await(t, a)

	select {
	case fen := <-ev.cancelled:
		if fen != fenA {
			t.Fatalf("cancelled %q", fen)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("superseded evaluation was not cancelled")
	}
	if _, ok := a.Latest(fenB); !ok {
		t.Fatalf("missing result for newest request")
	}
	if _, ok := a.Latest(fenA); ok {
		t.Fatalf("superseded result must be discarded")
	}
}

func TestFailureClearsLatest(t *testing.T) {
	ev := newFakeEvaluator()
	a := New(ev, Config{})
	defer a.Close()

	a.Request(fenA, true)
	await(t, a)

	ev.mu.Lock()
	ev.err = errors.New("engine crashed")
	ev.mu.Unlock()

	a.Request(fenA, true)
	await(t, a)
	if _, ok := a.Latest(fenA); ok {
		t.Fatalf("failed evaluation should clear the result")
	}
}

func TestNilEvaluatorAndClose(t *testing.T) {
	a := New(nil, Config{})
	a.Request(fenA, true)
	if err := a.Await(context.Background()); err != nil {
		t.Fatalf("await: %v", err)
	}
	if _, ok := a.Latest(fenA); ok {
		t.Fatalf("nil evaluator produced a result")
	}

	ev := newFakeEvaluator()
	closed := New(ev, Config{})
	closed.Close()
	closed.Request(fenA, true)
	if ev.callCount() != 0 {
		t.Fatalf("closed advisor evaluated")
	}
}
