package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meinzeug-cloud/mrsunkwn/internal/config"
	"github.com/meinzeug-cloud/mrsunkwn/internal/devserver"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "mrsunkwn.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	failEvery := flag.Int("fail-every", -1, "Answer every Nth API request with 503 (0 disables)")
	token := flag.String("token", "", "Require this bearer token")
	flag.Parse()

	if err := run(*configPath, *port, *failEvery, *token); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, port, failEvery int, token string) error {
	if err := config.LoadDotenv(); err != nil {
		return err
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv(nil)
	if port > 0 {
		cfg.DevServer.Port = port
	}
	if failEvery >= 0 {
		cfg.DevServer.FailEvery = failEvery
	}
	if token == "" {
		token = cfg.API.Token
	}

	logger, closer, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	srv := devserver.NewServer(cfg.DevServer, nil, token, logger)
	gen := devserver.NewGenerator(srv, devserver.HostSampler{}, cfg.DevServer.EventInterval, logger)
	httpSrv := &http.Server{
		Addr:              cfg.DevServerAddr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("main: listening", "addr", httpSrv.Addr, "fail_every", cfg.DevServer.FailEvery)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := gen.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("main: shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})
	return g.Wait()
}
