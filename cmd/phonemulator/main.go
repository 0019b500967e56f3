// phonemulator is a terminal console for the phonemulator backend. It
// drives the account and LLM endpoints from a form and tails the
// backend's live request log over WebSocket.
//
// With --plain it skips the interactive console and prints the live log
// and connection notices to stdout until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/phonemulator/console/internal/actions"
	"github.com/phonemulator/console/internal/app"
	"github.com/phonemulator/console/internal/client"
	"github.com/phonemulator/console/internal/config"
	"github.com/phonemulator/console/internal/display"
	"github.com/phonemulator/console/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, baseURL, wsURL, logFile string
	var plain bool

	flagSet := pflag.NewFlagSet("phonemulator", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file (.yaml, .toml or .json; default: "+config.DefaultPath+" if present)")
	flagSet.StringVar(&baseURL, "url", "", "backend base URL (overrides backend.base_url)")
	flagSet.StringVar(&wsURL, "ws-url", "", "push channel URL (overrides backend.ws_url)")
	flagSet.BoolVar(&plain, "plain", false, "print the live log to stdout instead of starting the console")
	flagSet.StringVar(&logFile, "log-file", "", "write JSON diagnostics to this file (overrides log.file)")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if baseURL != "" {
		cfg.Backend.BaseURL = baseURL
		if wsURL == "" {
			cfg.Backend.WSURL = ""
		}
	}
	if wsURL != "" {
		cfg.Backend.WSURL = wsURL
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := openLogger(cfg.Log.File)
	if err != nil {
		return fmt.Errorf("cannot open log file %s: %w", cfg.Log.File, err)
	}
	defer closeLog()
	logger.Info("starting", "base_url", cfg.Backend.BaseURL, "ws_url", cfg.Backend.WSURL, "plain", plain)

	if plain {
		return runPlain(cfg, logger)
	}
	return runConsole(cfg, logger)
}

// loadConfig reads path, or the default file when path is empty. Only a
// missing default file falls back to built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, err := config.Load(config.DefaultPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func openLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.DiscardHandler), func() {}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), func() { file.Close() }, nil
}

func newWSClient(cfg *config.Config, logger *slog.Logger, opts ...client.WSOption) *client.WSClient {
	base := []client.WSOption{
		client.WithDialer(client.NewDialer(cfg.Push.PingInterval.Std(), cfg.Push.PongTimeout.Std())),
		client.WithReconnectDelay(cfg.Push.ReconnectDelay.Std()),
		client.WithWSLogger(logger.With("component", "ws")),
	}
	return client.NewWSClient(cfg.Backend.WSURL, append(base, opts...)...)
}

func runPlain(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink := display.NewWriterSink(os.Stdout)
	ws := newWSClient(cfg, logger)
	ws.Start()
	defer ws.Stop()

	display.Pump(ctx, ws.Events(), sink)
	logger.Info("interrupted")
	return nil
}

func runConsole(cfg *config.Config, logger *slog.Logger) error {
	sink := &app.ProgramSink{}

	httpClient := client.NewHTTPClient(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout.Std(),
		client.WithHTTPLogger(logger.With("component", "http")))
	svc := actions.New(httpClient, session.New(), sink, logger.With("component", "actions"))
	ws := newWSClient(cfg, logger, client.WithStateObserver(sink.ConnState))

	m := app.New(svc, app.Options{
		MaxLogLines:    cfg.Log.MaxLines,
		ReconnectDelay: cfg.Push.ReconnectDelay.Std(),
	})
	p := tea.NewProgram(m, tea.WithAltScreen())
	sink.Attach(p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go display.Pump(ctx, ws.Events(), sink)

	ws.Start()
	defer ws.Stop()

	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
