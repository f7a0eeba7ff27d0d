package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lsm/internal/logging"
	"lsm/internal/server"
	"lsm/internal/store"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin panel HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if b := strings.TrimSpace(bind); b != "" {
				ctx.configValue().Server.Bind = b
			}
			return runServer(commandCtx(cmd), ctx)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (overrides server.bind)")
	return cmd
}

func runServer(cmdCtx context.Context, ctx *commandContext) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// A second instance must not swap lsm.log away from the running one.
	lock, err := server.AcquireLock(cfg.LockPath())
	if err != nil {
		if errors.Is(err, server.ErrAlreadyRunning) {
			return fmt.Errorf("%w (lock %s)", err, cfg.LockPath())
		}
		return err
	}
	defer func() { _ = lock.Unlock() }()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.DataDir, fmt.Sprintf("lsm-%s.log", runID))
	logger, err := logging.NewFromConfig(cfg, "stdout", logPath)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.LogPath(), logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update lsm.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.DataDir, Pattern: "lsm-*.log", Exclude: []string{logPath}},
	)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open database", logging.Error(err))
		return err
	}
	defer st.Close()

	srv, err := server.New(cfg, st, logger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	srv.HoldLock(lock)
	if err := srv.Run(signalCtx); err != nil {
		return err
	}
	logger.Info("lsm shutting down")
	return nil
}

// ensureCurrentLogPointer points lsm.log at the log of the running server.
func ensureCurrentLogPointer(current, target string) error {
	if current == "" || target == "" {
		return nil
	}
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}
