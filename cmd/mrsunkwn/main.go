package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/meinzeug-cloud/mrsunkwn/internal/app"
	"github.com/meinzeug-cloud/mrsunkwn/internal/backoff"
	"github.com/meinzeug-cloud/mrsunkwn/internal/client"
	"github.com/meinzeug-cloud/mrsunkwn/internal/config"
	"github.com/meinzeug-cloud/mrsunkwn/internal/engine"
)

func main() {
	configPath := flag.String("config", "mrsunkwn.yaml", "Path to config file")
	apiURL := flag.String("url", "", "Platform API base URL (overrides config)")
	subject := flag.String("subject", "", "Monitoring subject (overrides config)")
	token := flag.String("token", "", "Auth token (overrides config)")
	style := flag.String("style", "dark", "Markdown style for tutor replies")
	flag.Parse()

	if err := run(*configPath, *apiURL, *subject, *token, *style); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, apiURL, subject, token, style string) error {
	if err := config.LoadDotenv(); err != nil {
		return err
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv(nil)
	if apiURL != "" {
		cfg.API.BaseURL = apiURL
	}
	if subject != "" {
		cfg.Session.Subject = subject
	}
	if token != "" {
		cfg.API.Token = token
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// The TUI owns the terminal, so logs only go somewhere when a file is set.
	logger, closer, err := cfg.Log.NewLogger(io.Discard)
	if err != nil {
		return err
	}
	defer closer.Close()

	api := client.NewClient(cfg.API.BaseURL, clientOptions(cfg)...)

	var p *tea.Program
	deps := engine.Deps{API: api, Logger: logger}
	app.Wire(&deps, func(msg tea.Msg) { p.Send(msg) })
	eng := engine.New(cfg, deps)
	defer eng.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p = tea.NewProgram(app.New(eng, app.Options{GlamourStyle: style}), tea.WithAltScreen(), tea.WithContext(ctx))

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			logger.Info("main: shutting down")
			p.Quit()
		case <-done:
		}
		return nil
	})
	return g.Wait()
}

func clientOptions(cfg *config.Config) []client.Option {
	opts := []client.Option{
		client.WithToken(cfg.API.Token),
		client.WithTimeout(cfg.API.Timeout),
	}
	for k, v := range cfg.API.Headers {
		opts = append(opts, client.WithHeader(k, v))
	}
	policy := client.RetryPolicy{
		RetryableStatusCodes: cfg.Retry.StatusCodes,
		MaxAttempts:          cfg.Retry.MaxAttempts,
		Backoff:              backoff.Exponential(cfg.Retry.Delay, cfg.Retry.MaxDelay, cfg.Retry.BackoffFactor),
	}
	return append(opts, client.WithInterceptor(policy.Interceptor()))
}
