package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"

	"github.com/ytget/ytstreams"
	"github.com/ytget/ytstreams/agent"
	"github.com/ytget/ytstreams/internal/config"
	"github.com/ytget/ytstreams/internal/history"
	"github.com/ytget/ytstreams/internal/logger"
	"github.com/ytget/ytstreams/internal/server"
	"github.com/ytget/ytstreams/session"
	"github.com/ytget/ytstreams/youtube/cipher"
	"github.com/ytget/ytstreams/youtube/watch"
)

func main() {
	var flagConfig string
	flag.StringVar(&flagConfig, "config", "", "YAML config file (default $"+config.EnvConfigPath+")")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-config FILE]\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "\nSettings are read from the config file and STREAMS_* environment variables.")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flagConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	fs := afero.NewOsFs()
	cfg, err := config.Load(fs, configPath)
	if err != nil {
		return err
	}

	root, err := logger.CreateLoggerFromConfig(&cfg.Log)
	if err != nil {
		return err
	}
	logger.SetGlobalLogger(root)
	log := root.WithComponent(logger.ComponentApp)

	src, err := cfg.CookieSource(fs)
	if err != nil {
		return err
	}

	opts := []session.Option{
		session.WithInterval(cfg.RefreshInterval),
		session.WithLogger(root),
	}
	var hist server.HistoryReader
	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB, history.WithLogger(root))
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		opts = append(opts, session.WithRecorder(store))
		hist = store
	}

	ctx, cancel := context.WithCancel(ctx)
	mgr := session.NewManager(src, opts...)
	mgr.Start(ctx)
	defer mgr.Wait()
	defer cancel()

	scriptClient, err := agent.NewHTTPClient(cfg.ProxyConfig(), cfg.RequestTimeout)
	if err != nil {
		return err
	}
	engine := cipher.New(scriptClient,
		cipher.WithLogger(root),
		cipher.WithTTL(cfg.ScriptCacheTTL),
	)

	svc, err := ytstreams.New(mgr, ytstreams.Config{
		Fetcher: watch.Config{
			Origin:    cfg.Origin,
			UserAgent: cfg.UserAgent,
			Proxy:     cfg.ProxyConfig(),
			Timeout:   cfg.RequestTimeout,
			RateLimit: cfg.RateLimit,
			Burst:     cfg.RateBurst,
		},
		PlatformOrigin: cfg.PlatformOrigin,
		FallbackScript: cfg.FallbackPlayerScript,
		Decipherer:     engine,
		Logger:         root,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Options{
		Resolver:       svc,
		State:          mgr,
		History:        hist,
		Metrics:        engine,
		Logger:         root,
		RequestTimeout: 2 * cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}

	log.Info("Starting", map[string]any{
		"addr":     cfg.Addr,
		"interval": cfg.RefreshInterval.String(),
		"history":  cfg.HistoryDB != "",
	})
	return srv.ListenAndServe(ctx, cfg.Addr)
}
