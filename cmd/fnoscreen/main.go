package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobmcallan/fnoscreen/internal/app"
	"github.com/bobmcallan/fnoscreen/internal/common"
	"github.com/bobmcallan/fnoscreen/internal/server"
)

const usage = `Usage: fnoscreen [-config path] <command> [args]

Commands:
  serve               run the HTTP API and the collection schedule
  collect-all         collect the universe, reconcile and refresh the benchmark
  collect-one SYMBOL  collect a single symbol
  stats               print store statistics
  version             print version information
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("fnoscreen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "path to fnoscreen.toml (default: $FNOSCREEN_CONFIG)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	command := rest[0]
	switch command {
	case "version":
		fmt.Fprintln(stdout, common.GetFullVersion())
		return 0
	case "collect-one":
		if len(rest) != 2 {
			fmt.Fprintln(stderr, "collect-one requires exactly one SYMBOL")
			return 2
		}
	case "serve", "collect-all", "stats":
		if len(rest) != 1 {
			fmt.Fprintf(stderr, "%s takes no arguments\n", command)
			return 2
		}
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		fs.Usage()
		return 2
	}

	a, err := app.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize app: %v\n", err)
		return 1
	}
	defer a.Close()

	if command == "serve" {
		return serve(a)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var result interface{}
	switch command {
	case "collect-all":
		result, err = a.PipelineService.CollectAll(ctx)
	case "collect-one":
		result, err = a.PipelineService.CollectOne(ctx, rest[1])
	case "stats":
		result, err = a.PipelineService.Stats(ctx)
	}
	if err != nil {
		a.Logger.Error().Err(err).Str("command", command).Msg("Command failed")
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(stderr, "Failed to write result: %v\n", err)
		return 1
	}
	return 0
}

// serve runs the HTTP server until SIGINT or SIGTERM.
func serve(a *app.App) int {
	common.PrintBanner(a.Config, a.Logger)

	if err := a.StartScheduler(); err != nil {
		a.Logger.Error().Err(err).Msg("Scheduler failed to start")
		return 1
	}

	srv := server.NewServer(a)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	code := 0
	select {
	case <-sigChan:
		a.Logger.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		a.Logger.Error().Err(err).Msg("HTTP server failed")
		code = 1
	}

	common.PrintShutdownBanner(a.Logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	a.Logger.Info().Msg("Server stopped")
	return code
}
