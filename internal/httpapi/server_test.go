package httpapi

import (
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/capture-challenge/internal/msgcat"
	"github.com/park285/capture-challenge/internal/session"
	"github.com/park285/capture-challenge/pkg/capturedto"
)

type testServer struct {
	t      *testing.T
	client *fasthttp.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	svc := session.New(session.Config{LimitEnabled: true})
	t.Cleanup(svc.Shutdown)

	srv := New(svc, cat, nil)
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	client := &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	}
	return &testServer{t: t, client: client}
}

func (ts *testServer) do(method, path, body string, out any) int {
	ts.t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI("http://capture.test" + path)
	if body != "" {
		req.Header.SetContentType("application/json")
		req.SetBodyString(body)
	}
	if err := ts.client.DoTimeout(req, resp, 2*time.Second); err != nil {
		ts.t.Fatalf("%s %s: %v", method, path, err)
	}
	if out != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			ts.t.Fatalf("decode %s %s: %v (%s)", method, path, err, resp.Body())
		}
	}
	return resp.StatusCode()
}

func TestGameFlow(t *testing.T) {
	ts := newTestServer(t)

	var game capturedto.GameState
	if code := ts.do("POST", "/games", "", &game); code != fasthttp.StatusCreated {
		t.Fatalf("create: %d", code)
	}
	if game.Turn != "white" || game.Limit.Remaining != 12 || len(game.Board) != 32 {
		t.Fatalf("fresh game: %+v", game)
	}
	if !containsLine(game.Status, "No captures yet") {
		t.Fatalf("fresh status lines: %v", game.Status)
	}

	var dests capturedto.DestinationsResponse
	if code := ts.do("GET", "/games/"+game.ID+"/destinations?from=e2", "", &dests); code != fasthttp.StatusOK {
		t.Fatalf("destinations: %d", code)
	}
	if strings.Join(dests.Destinations, ",") != "e3,e4" {
		t.Fatalf("destinations: %v", dests.Destinations)
	}

	for _, mv := range []string{`{"from":"e2","to":"e4"}`, `{"from":"d7","to":"d5"}`} {
		if code := ts.do("POST", "/games/"+game.ID+"/moves", mv, nil); code != fasthttp.StatusOK {
			t.Fatalf("move %s: %d", mv, code)
		}
	}
	var res capturedto.MoveResponse
	if code := ts.do("POST", "/games/"+game.ID+"/moves", `{"from":"e4","to":"d5"}`, &res); code != fasthttp.StatusOK {
		t.Fatalf("capture: %d", code)
	}
	if res.SAN != "exd5" || res.Captured == nil || res.Captured.Label != "p (+1 pts)" {
		t.Fatalf("capture response: %+v", res)
	}
	if res.Game.Score.White != 1 || res.Game.MovesMade != 3 {
		t.Fatalf("game after capture: %+v", res.Game)
	}
	if !containsLine(res.Game.Status, "Last capture: p (+1 pts)") {
		t.Fatalf("status lines: %v", res.Game.Status)
	}

	var quiet capturedto.MoveResponse
	if code := ts.do("POST", "/games/"+game.ID+"/moves", `{"from":"g8","to":"f6"}`, &quiet); code != fasthttp.StatusOK {
		t.Fatalf("quiet move: %d", code)
	}
	if quiet.Captured != nil || quiet.Game.LastCapture == nil || !containsLine(quiet.Game.Status, "Last capture: p (+1 pts)") {
		t.Fatalf("last capture lost after a quiet move: %+v %v", quiet.Captured, quiet.Game.Status)
	}
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)

	var e capturedto.Error
	if code := ts.do("POST", "/games", `{"fen":"garbage"}`, &e); code != fasthttp.StatusBadRequest || e.Code != "invalid_notation" {
		t.Fatalf("bad fen: %d %+v", code, e)
	}
	if code := ts.do("GET", "/games/00000000-0000-0000-0000-000000000000", "", &e); code != fasthttp.StatusNotFound {
		t.Fatalf("unknown game: %d", code)
	}

	var game capturedto.GameState
	ts.do("POST", "/games", "", &game)

	e = capturedto.Error{}
	code := ts.do("POST", "/games/"+game.ID+"/moves", `{"from":"f1","to":"c4"}`, &e)
	if code != fasthttp.StatusUnprocessableEntity || e.Reason != "path_blocked" {
		t.Fatalf("blocked bishop: %d %+v", code, e)
	}
	if e.Message != "The bishop's path from f1 to c4 is blocked." {
		t.Fatalf("message: %q", e.Message)
	}

	e = capturedto.Error{}
	ts.do("POST", "/games/"+game.ID+"/moves", `{"from":"e7","to":"e5"}`, &e)
	if e.Reason != "not_your_turn" || e.Message != "It is White's turn." {
		t.Fatalf("wrong side: %+v", e)
	}

	if code := ts.do("POST", "/games/"+game.ID+"/moves", `{"from":"z9","to":"e4"}`, &e); code != fasthttp.StatusBadRequest {
		t.Fatalf("bad square: %d", code)
	}
	if code := ts.do("GET", "/games/"+game.ID+"/moves", "", &e); code != fasthttp.StatusMethodNotAllowed {
		t.Fatalf("wrong method: %d", code)
	}
	if code := ts.do("GET", "/games", "", &e); code != fasthttp.StatusMethodNotAllowed || e.Code != "method_not_allowed" {
		t.Fatalf("GET /games: %d %+v", code, e)
	}
	if code := ts.do("GET", "/games/"+game.ID+"/nowhere", "", &e); code != fasthttp.StatusNotFound || e.Code != "not_found" {
		t.Fatalf("unknown route: %d %+v", code, e)
	}
}

func TestGameOverConflict(t *testing.T) {
	ts := newTestServer(t)
	var game capturedto.GameState
	ts.do("POST", "/games", "", &game)

	shuffle := []string{"g1f3", "g8f6", "f3g1", "f6g8"}
	for i := 0; i < 3; i++ {
		for _, m := range shuffle {
			body := `{"from":"` + m[:2] + `","to":"` + m[2:] + `"}`
			if code := ts.do("POST", "/games/"+game.ID+"/moves", body, nil); code != fasthttp.StatusOK {
				t.Fatalf("move %s: %d", m, code)
			}
		}
	}

	var e capturedto.Error
	if code := ts.do("POST", "/games/"+game.ID+"/moves", `{"from":"e2","to":"e4"}`, &e); code != fasthttp.StatusConflict || e.Code != "game_over" {
		t.Fatalf("after budget: %d %+v", code, e)
	}

	var finished []capturedto.FinishedGame
	if code := ts.do("GET", "/games/finished", "", &finished); code != fasthttp.StatusOK || len(finished) != 1 {
		t.Fatalf("finished: %d %d", code, len(finished))
	}
	if finished[0].Outcome != "draw" {
		t.Fatalf("outcome: %+v", finished[0])
	}
}

func TestPromotionAndToggle(t *testing.T) {
	ts := newTestServer(t)
	var game capturedto.GameState
	ts.do("POST", "/games", `{"fen":"8/P7/8/8/8/8/8/k6K w - - 0 1"}`, &game)

	var res capturedto.MoveResponse
	if code := ts.do("POST", "/games/"+game.ID+"/moves", `{"from":"a7","to":"a8"}`, &res); code != fasthttp.StatusAccepted {
		t.Fatalf("promotion without choice: %d", code)
	}
	if res.Status != "promotion_required" || res.Game.Pending == nil {
		t.Fatalf("pending: %+v", res)
	}
	if code := ts.do("POST", "/games/"+game.ID+"/moves", `{"from":"a7","to":"a8","promotion":"n"}`, &res); code != fasthttp.StatusOK {
		t.Fatalf("complete promotion: %d", code)
	}
	if res.Move != "a7a8n" || res.Game.MovesMade != 1 || res.Game.Pending != nil {
		t.Fatalf("promoted: %+v", res)
	}

	if code := ts.do("POST", "/games/"+game.ID+"/limit/toggle", "", &game); code != fasthttp.StatusOK {
		t.Fatalf("toggle: %d", code)
	}
	if game.Limit.Enabled || game.Limit.Remaining != -1 {
		t.Fatalf("limit after toggle: %+v", game.Limit)
	}

	var sg capturedto.SuggestionsResponse
	if code := ts.do("GET", "/games/"+game.ID+"/suggestions", "", &sg); code != fasthttp.StatusOK || sg.Available {
		t.Fatalf("suggestions without engine: %d %+v", code, sg)
	}
	if code := ts.do("DELETE", "/games/"+game.ID, "", nil); code != fasthttp.StatusNoContent {
		t.Fatalf("delete: %d", code)
	}
}

func containsLine(lines []string, want string) bool {
	for _, l := range lines {
		if l == want {
			return true
		}
	}
	return false
}
