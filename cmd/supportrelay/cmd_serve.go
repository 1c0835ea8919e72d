package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/supportrelay/internal/config"
	"github.com/user/supportrelay/internal/gateway"
	"github.com/user/supportrelay/internal/metrics"
	"github.com/user/supportrelay/internal/relay"
	"github.com/user/supportrelay/internal/slack"
	"github.com/user/supportrelay/internal/trigger"
	"github.com/user/supportrelay/internal/webhook"
)

const shutdownTimeout = 15 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the message listener and the Slack events endpoint",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "supportrelay.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	flush := setupLogging(cfg)
	defer flush()

	paths, err := cfg.Validate(config.ServeKeys...)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg, paths)
	if err != nil {
		return err
	}
	defer st.Close()

	m := metrics.New()
	chat := slack.New(cfg.Slack.BotToken)

	outbound := relay.NewOutbound(st.threads, st.messages, chat, relay.OutboundConfig{
		Channel:   cfg.Slack.ChannelID,
		ProjectID: cfg.ProjectID,
		Database:  cfg.Firestore.Database,
		BotID:     cfg.Slack.BotID,
	}, m)
	inbound := relay.NewInbound(st.threads, st.messages, chat, relay.InboundConfig{
		SigningSecret: cfg.Slack.SigningSecret,
		BotID:         cfg.Slack.BotID,
		Channel:       cfg.Slack.ChannelID,
	}, m)

	// Deliveries keep ctx until the gateway has drained; the listener stops first.
	gw := gateway.New(outbound, int64(cfg.MaxConcurrent))
	gw.Start(ctx)

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	watcher := trigger.NewWatcher(st.client, paths.Messages, gw, m)
	watchDone := make(chan struct{})
	var watchErr error
	go func() {
		watchErr = watcher.Run(watchCtx)
		close(watchDone)
	}()

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           webhook.NewServer(inbound, m.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		slog.Info("http server started", "listen", cfg.HTTP.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	slog.Info("supportrelay started",
		"project_id", cfg.ProjectID,
		"database", cfg.Firestore.Database,
		"thread_path", paths.Thread.String(),
		"messages_path", paths.Messages.String(),
		"channel_id", cfg.Slack.ChannelID,
		"max_concurrent", cfg.MaxConcurrent,
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	var runErr error
loop:
	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				slog.Info("received SIGHUP, restarting")
				shutdown(httpServer, stopWatch, watchDone, gw, inbound)
				st.Close()
				flush()
				execPath, err := os.Executable()
				if err != nil {
					return fmt.Errorf("get executable path: %w", err)
				}
				os.Remove(pidPath)
				if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
					return fmt.Errorf("re-exec: %w", err)
				}
			}
			slog.Info("shutting down", "signal", sig.String())
			break loop
		case <-watchDone:
			runErr = watchErr
			break loop
		case err := <-httpErr:
			runErr = fmt.Errorf("http server: %w", err)
			break loop
		}
	}

	shutdown(httpServer, stopWatch, watchDone, gw, inbound)
	return runErr
}

// shutdown stops intake first, then lets queued deliveries and diagnostic
// posts finish.
func shutdown(srv *http.Server, stopWatch context.CancelFunc, watchDone <-chan struct{}, gw *gateway.Gateway, inbound *relay.Inbound) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("http server shutdown", "error", err)
	}
	stopWatch()
	select {
	case <-watchDone:
	case <-ctx.Done():
		slog.Warn("message listener did not stop in time")
	}

	gw.Stop()
	if err := inbound.Drain(ctx); err != nil {
		slog.Warn("diagnostic posts still pending at shutdown", "error", err)
	}
	slog.Info("shutdown complete")
}
