package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/capture-challenge/internal/chess"
	"github.com/park285/capture-challenge/internal/chess/openingbook"
	"github.com/park285/capture-challenge/internal/chess/remote"
	"github.com/park285/capture-challenge/internal/obslog"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func main() {
	fen := flag.String("fen", startFEN, "position to analyse")
	preset := flag.String("preset", chess.DefaultPresetName, "analysis preset")
	bin := flag.String("engine", os.Getenv("STOCKFISH_PATH"), "engine binary (default: homebrew, then PATH)")
	wsURL := flag.String("remote", os.Getenv("ENGINE_WS_URL"), "evaluate through a remote analysis host instead")
	serve := flag.String("serve", "", "host the local engine over websocket on this address, e.g. :9090")
	bookPath := flag.String("book", os.Getenv("OPENING_BOOK_PATH"), "polyglot opening book")
	flag.Parse()

	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()

	var eval chess.Evaluator
	if *wsURL != "" {
		client := remote.NewClient(*wsURL, remote.WithLogger(logger))
		defer client.Close()
		eval = client
	} else {
		var book *openingbook.Book
		if path, err := openingbook.ResolvePath(*bookPath); err == nil {
			book, _ = openingbook.Open(path, openingbook.Options{})
		}
		engine, err := chess.NewEngine(chess.EngineConfig{BinaryPath: *bin, Book: book, Logger: logger})
		if err != nil {
			log.Fatalf("engine: %v", err)
		}
		defer engine.Close()
		log.Printf("engine binary: %s", engine.BinaryPath())
		eval = engine
	}

	if *serve != "" {
		if err := serveRemote(*serve, eval, logger); err != nil {
			log.Fatalf("serve: %v", err)
		}
		return
	}

	p, err := chess.GetPreset(*preset)
	if err != nil {
		log.Fatalf("preset: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	res, err := eval.Evaluate(ctx, p.Request(*fen))
	if err != nil {
		log.Fatalf("evaluate: %v", err)
	}

	fmt.Printf("fen:       %s\n", *fen)
	fmt.Printf("best move: %s (%s)\n", res.BestMove, res.Duration.Round(time.Millisecond))
	for i, c := range res.Candidates {
		fmt.Printf("%d. %-6s %-10s depth=%d pv=%v\n", i+1, c.Move, c.Label(), c.Depth, c.Principal)
	}
	if len(res.BookMoves) > 0 {
		fmt.Printf("book:      %v\n", res.BookMoves)
	}
}

func serveRemote(addr string, eval chess.Evaluator, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/evaluate", remote.NewHandler(eval, logger))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Printf("serving evaluations on ws://%s/evaluate", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
