// Command gitguard runs the MCP server as a stdio subprocess or over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonchun/gitguard"
)

var version = "dev"

const defaultAddr = "127.0.0.1:8765"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{}))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, os.Args[1:]); err != nil {
		logger.Error("gitguard failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		return runStdio(ctx, logger)
	}

	switch args[0] {
	case "help", "-h", "--help":
		printHelp(os.Stdout)
		return nil
	case "version", "-v", "--version":
		fmt.Printf("gitguard %s\n", version)
		return nil
	case "http":
		addr := defaultAddr
		if len(args) > 1 {
			addr = args[1]
		}
		return runHTTP(ctx, logger, addr)
	default:
		printHelp(os.Stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func config(logger *slog.Logger) gitguard.Config {
	return gitguard.Config{Logger: logger, Version: version}
}

func runStdio(ctx context.Context, logger *slog.Logger) error {
	err := gitguard.RunStdio(ctx, config(logger))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runHTTP(ctx context.Context, logger *slog.Logger, addr string) error {
	handler, err := gitguard.NewHTTPHandler(config(logger))
	if err != nil {
		return err
	}
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}

func printHelp(w io.Writer) {
	_, _ = fmt.Fprintln(w, "gitguard - read-only git views for LLM agents over MCP")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  gitguard               Start MCP server over stdio (default)")
	_, _ = fmt.Fprintln(w, "  gitguard http [addr]   Serve MCP over SSE (default "+defaultAddr+")")
	_, _ = fmt.Fprintln(w, "  gitguard help          Show this help")
	_, _ = fmt.Fprintln(w, "  gitguard version       Show version")
}
