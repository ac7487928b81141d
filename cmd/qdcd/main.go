// Command qdcd is the Quantum Dispatch Core daemon: start runs the
// supervisor (and, when Kafka is configured, the chat adapter) until
// signalled to stop; stop/status talk to a running start process over its
// control socket. Grounded on cmd/orchestrator/main.go's construction and
// signal-driven shutdown.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lyraworks/qdc/internal/chatadapter"
	"github.com/lyraworks/qdc/internal/config"
	"github.com/lyraworks/qdc/internal/observability"
	"github.com/lyraworks/qdc/internal/supervisor"
)

// startupErr marks a failure that happened before the daemon reached a
// running state (config load, component construction, supervisor start),
// as opposed to a fatal error once it was already serving traffic.
type startupErr struct{ err error }

func (e *startupErr) Error() string { return e.err.Error() }
func (e *startupErr) Unwrap() error { return e.err }

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = runStart(os.Args[2:])
	case "stop":
		err = runStop(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		log.Error().Err(err).Msg("qdcd")
		var se *startupErr
		if errors.As(err, &se) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: qdcd <start|stop|status> [flags]")
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		return &startupErr{fmt.Errorf("load config: %w", err)}
	}
	observability.InitLogger(cfg.Log.Path, cfg.Log.Level)

	baseCtx := context.Background()
	shutdownOTel, err := observability.InitOTel(baseCtx, observability.Config{
		Endpoint:    cfg.Otel.Endpoint,
		ServiceName: cfg.Otel.ServiceName,
	})
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without telemetry")
		shutdownOTel = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTel(context.Background()) }()

	sup, err := supervisor.New(cfg)
	if err != nil {
		return &startupErr{fmt.Errorf("construct supervisor: %w", err)}
	}

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		return &startupErr{fmt.Errorf("start supervisor: %w", err)}
	}

	requestTimeout := time.Duration(cfg.Dispatch.RequestDeadlineSeconds) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	adapter, err := chatadapter.New(cfg.ChatAdapter, sup, requestTimeout, cfg.Queue.Workers)
	if err != nil {
		return fmt.Errorf("init chat adapter: %w", err)
	}
	if adapter != nil {
		defer func() {
			if err := adapter.Close(); err != nil {
				log.Warn().Err(err).Msg("error closing chat adapter")
			}
		}()
		go func() {
			log.Info().Msg("chat adapter started")
			if err := adapter.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("chat adapter stopped unexpectedly")
			}
		}()
	} else {
		log.Info().Msg("chat adapter not configured; core reachable only via direct Submit and the control socket")
	}

	log.Info().Msg("qdcd running")
	<-ctx.Done()
	log.Info().Msg("signal received, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Shutdown.DrainPeriodSeconds+10)*time.Second)
	defer shutdownCancel()
	if err := sup.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown supervisor: %w", err)
	}

	return nil
}

func runStop(args []string) error {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
	socket := fs.String("socket", defaultSocketPath(), "path to the control socket of a running qdcd start")
	fs.Parse(args)

	resp, err := supervisor.SendControlRequest(*socket, "stop", "")
	if err != nil {
		return fmt.Errorf("send stop request: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("stop request failed: %s", resp.Error)
	}
	fmt.Println("stop requested")
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	socket := fs.String("socket", defaultSocketPath(), "path to the control socket of a running qdcd start")
	userID := fs.String("user", "", "user id to report queue position for")
	fs.Parse(args)

	resp, err := supervisor.SendControlRequest(*socket, "status", *userID)
	if err != nil {
		return fmt.Errorf("send status request: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("status request failed: %s", resp.Error)
	}
	fmt.Printf("state=%s position=%d eta_seconds=%.1f\n", resp.State, resp.Position, resp.ETASeconds)
	return nil
}

func defaultSocketPath() string {
	if v := os.Getenv("QDC_CONTROL_SOCKET"); v != "" {
		return v
	}
	return "/tmp/qdcd.sock"
}
