// Studio Toolkit script host
//
// Serves the panel's bridge over HTTP:
// - goja engine with filesystem functions for the script library
// - JWT bearer auth, optional OIDC
// - per-client rate limiting
// - SSE library_changed events from an fsnotify watcher
// - Prometheus metrics & structured logging (zap)
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

	"github.com/fruitsalade/studiokit/internal/config"
	"github.com/fruitsalade/studiokit/internal/logging"
	"github.com/fruitsalade/studiokit/internal/metrics"
	"github.com/fruitsalade/studiokit/internal/scripthost"
)

func main() {
	configPath := flag.String("config", os.Getenv("STUDIOKIT_CONFIG"), "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.Output,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	if flag.Arg(0) == "token" {
		if err := cmdToken(cfg, flag.Args()[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(cfg); err != nil {
		logging.Fatal("server error", logging.Err(err))
	}
}

func serve(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info("script host starting...",
		logging.String("listen", cfg.Host.ListenAddr),
		logging.String("metrics", cfg.Host.MetricsAddr),
		logging.String("reply_format", cfg.Host.ReplyFormat))

	engine := scripthost.NewEngine(scripthost.Config{
		ScriptExtension: cfg.Library.ScriptExtension,
		ScriptTimeout:   cfg.Host.ScriptTimeout,
		LegacyReplies:   cfg.Host.ReplyFormat == "legacy",
	})

	auth := scripthost.NewAuth(cfg.Host.JWTSecret)
	if cfg.Host.OIDCIssuerURL != "" {
		if err := auth.EnableOIDC(ctx, cfg.Host.OIDCIssuerURL, cfg.Host.OIDCClientID); err != nil {
			return err
		}
	}
	if !auth.Enabled() {
		logging.Warn("authentication disabled; any client that can reach the listener may run scripts")
	}

	broadcaster := scripthost.NewBroadcaster()
	limiter := scripthost.NewRateLimiter(cfg.Host.RequestsPerSecond, cfg.Host.Burst)
	srv := scripthost.NewServer(engine, broadcaster, auth, limiter, cfg.Host.WatchRoot)

	httpServer := &http.Server{
		Addr:              cfg.Host.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:    cfg.Host.MetricsAddr,
		Handler: metrics.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Info("server listening", logging.String("addr", cfg.Host.ListenAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Host.MetricsAddr != "" {
		g.Go(func() error {
			logging.Info("metrics server listening", logging.String("addr", cfg.Host.MetricsAddr))
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if cfg.Host.WatchRoot != "" {
		w := scripthost.NewWatcher(cfg.Host.WatchRoot, cfg.Library.ScriptExtension,
			cfg.Library.RegistryFilename, cfg.Host.WatchDebounce, broadcaster)
		g.Go(func() error {
			if err := w.Run(gctx); err != nil {
				logging.Error("library watcher stopped", logging.Err(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logging.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsServer.Shutdown(shutdownCtx)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			// SSE clients hold connections open.
			httpServer.Close()
		}
		return nil
	})

	return g.Wait()
}

// cmdToken prints a bearer token for a panel: token <client> [ttl].
func cmdToken(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: scripthost token <client> [ttl]")
	}
	ttl := 30 * 24 * time.Hour
	if len(args) > 1 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid ttl %q: %w", args[1], err)
		}
		ttl = d
	}
	token, err := scripthost.NewAuth(cfg.Host.JWTSecret).IssueToken(args[0], ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
