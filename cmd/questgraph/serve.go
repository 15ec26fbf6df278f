package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"questgraph/internal/api"
	"questgraph/pkg/config"
	"questgraph/pkg/db"
	"questgraph/pkg/db/maintenance"
	"questgraph/pkg/logging"
	"questgraph/pkg/probe"
	"questgraph/pkg/quest"
	"questgraph/pkg/session"
	"questgraph/pkg/store"
	"questgraph/pkg/version"
	"questgraph/pkg/watcher"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a quest over HTTP and websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides server.address")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	closeLogs, err := logging.Init(&cfg.Log, true)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer closeLogs()

	slog.Info("questgraph starting", "version", version.Version, "asset", cfg.Story.Asset)

	q, err := loadQuest(cfg)
	if err != nil {
		return err
	}

	var (
		sessOpts []session.Option
		st       store.JournalStore
	)
	dbConn, sqlStore, err := initDB(cfg)
	if err != nil {
		return err
	}
	if dbConn != nil {
		defer dbConn.Close()
		if err := maintenance.Run(ctx, dbConn, cfg.DB.Retention.Std()); err != nil {
			slog.Warn("Journal maintenance failed", "error", err)
		}
		st = sqlStore
		sessOpts = append(sessOpts, session.WithStore(sqlStore))
	}

	if err := probe.Analyze(probe.Run(ctx, preflight(cfg, q, dbConn), 0)); err != nil {
		return fmt.Errorf("preflight checks failed: %w", err)
	}

	sess := session.New(q, sessOpts...)
	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("failed to start quest: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := api.NewServer(cfg.Server.Address, api.NewQuestHandler(sess, st), cancel)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runServerLifecycle(ctx, srv)
	})
	if cfg.Story.AutoAdvance {
		g.Go(func() error {
			return quiet(sess.Run(ctx))
		})
	}
	if cfg.Story.Watch {
		w, err := newAssetWatcher(cfg, sess)
		if err != nil {
			// A missing watch does not stop the server.
			slog.Warn("Asset watcher unavailable", "error", err)
		} else {
			g.Go(func() error {
				return quiet(w.Run(ctx))
			})
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("questgraph stopped")
	return nil
}

func preflight(cfg *config.Config, q *quest.Quest, dbConn *db.DB) []probe.Probe {
	probes := []probe.Probe{
		{
			Name: "Listen address",
			Check: func(ctx context.Context) error {
				var lc net.ListenConfig
				l, err := lc.Listen(ctx, "tcp", cfg.Server.Address)
				if err != nil {
					return err
				}
				return l.Close()
			},
			Critical: true,
		},
		{
			Name:  "Quest reachability",
			Check: func(context.Context) error { return unreachable(q) },
		},
	}
	if dbConn != nil {
		probes = append(probes, probe.Probe{
			Name:     "Journal database",
			Check:    dbConn.PingContext,
			Critical: true,
		})
	}
	return probes
}

// unreachable reports pools no path from the start pool can reach.
func unreachable(q *quest.Quest) error {
	q.ComputeWaves()
	var names []string
	for _, p := range q.Pools() {
		if p.Wave() < 0 {
			names = append(names, p.Name)
		}
	}
	if len(names) > 0 {
		return fmt.Errorf("unreachable pools: %v", names)
	}
	return nil
}

// runServerLifecycle serves until ctx is done, then shuts the server down.
func runServerLifecycle(ctx context.Context, srv *http.Server) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down server...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newAssetWatcher reloads the quest and restarts the session whenever the
// asset file changes. A broken asset keeps the running quest.
func newAssetWatcher(cfg *config.Config, sess *session.Session) (*watcher.Service, error) {
	w, err := watcher.NewService([]string{cfg.Story.Asset}, 0)
	if err != nil {
		return nil, err
	}
	w.OnChange = func(path string) error {
		q, err := loadQuest(cfg)
		if err != nil {
			return err
		}
		if err := sess.Replace(context.Background(), q); err != nil {
			return fmt.Errorf("failed to restart quest: %w", err)
		}
		slog.Info("Quest reloaded", "path", path, "quest", q.Name)
		return nil
	}
	w.OnError = func(path string, err error) {
		slog.Warn("Asset reload failed", "path", path, "error", err)
	}
	return w, nil
}

// quiet drops the cancellation error a background loop returns on shutdown.
func quiet(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
