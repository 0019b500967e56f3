// phonemulator-mock serves an in-memory phonemulator backend for local
// use. It answers the account and LLM routes and broadcasts request logs
// on /ws/logs. Prompts are echoed back unless --ollama-url is set.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/phonemulator/console/internal/config"
	"github.com/phonemulator/console/internal/mockserver"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, listen, ollamaURL, model string

	flagSet := pflag.NewFlagSet("phonemulator-mock", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file (default: "+config.DefaultPath+" if present)")
	flagSet.StringVar(&listen, "listen", "", "listen address (overrides mock.listen)")
	flagSet.StringVar(&ollamaURL, "ollama-url", "", "Ollama base URL to proxy prompts to (overrides mock.ollama_url)")
	flagSet.StringVar(&model, "model", "", "Ollama model name (overrides mock.model)")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg := config.Default()
	path := configPath
	if path == "" {
		path = config.DefaultPath
	}
	loaded, err := config.Load(path)
	switch {
	case err == nil:
		cfg = loaded
	case configPath == "" && errors.Is(err, fs.ErrNotExist):
	default:
		return err
	}

	if listen != "" {
		cfg.Mock.Listen = listen
	}
	if ollamaURL != "" {
		cfg.Mock.OllamaURL = ollamaURL
	}
	if model != "" {
		cfg.Mock.Model = model
	}
	if err := cfg.Mock.Validate(); err != nil {
		return err
	}

	srv := mockserver.NewServer(mockserver.Options{
		OllamaURL: cfg.Mock.OllamaURL,
		Model:     cfg.Mock.Model,
		Timeout:   cfg.Mock.Timeout.Std(),
	})
	if cfg.Mock.OllamaURL != "" {
		log.Printf("Proxying prompts to Ollama at %s (model %s)", cfg.Mock.OllamaURL, cfg.Mock.Model)
	} else {
		log.Println("No Ollama URL configured, echoing prompts")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx, cfg.Mock.Listen); err != nil {
		return err
	}
	log.Println("Shut down")
	return nil
}
