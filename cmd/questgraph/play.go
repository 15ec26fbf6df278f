package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"questgraph/pkg/db/maintenance"
	"questgraph/pkg/logging"
	"questgraph/pkg/session"
	"questgraph/pkg/tui"
	"questgraph/pkg/version"
)

func newPlayCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Play a quest in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPlay(ctx, cmd, opts)
		},
	}
}

func runPlay(ctx context.Context, cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	// Logs go to the files only; the terminal belongs to the story.
	closeLogs, err := logging.Init(&cfg.Log, false)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer closeLogs()

	q, err := loadQuest(cfg)
	if err != nil {
		return err
	}

	var sessOpts []session.Option
	dbConn, st, err := initDB(cfg)
	if err != nil {
		return err
	}
	if dbConn != nil {
		defer dbConn.Close()
		if err := maintenance.Run(ctx, dbConn, cfg.DB.Retention.Std()); err != nil {
			slog.Warn("Journal maintenance failed", "error", err)
		}
		sessOpts = append(sessOpts, session.WithStore(st))
	}

	sess := session.New(q, sessOpts...)
	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("failed to start quest: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, tui.Header(q.Name, version.Version))
	return tui.Play(ctx, sess, cmd.InOrStdin(), out)
}
