package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"cloud.google.com/go/firestore"
	"github.com/spf13/cobra"

	"github.com/user/supportrelay/internal/config"
	"github.com/user/supportrelay/internal/gcp"
	"github.com/user/supportrelay/internal/logging"
	"github.com/user/supportrelay/internal/state"
)

var (
	cfgPath    string
	dotEnvPath string
)

var rootCmd = &cobra.Command{
	Use:           "supportrelay",
	Short:         "Relay support chat between Firestore and a Slack channel",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadDotEnv(dotEnvPath)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config",
		filepath.Join(os.Getenv("HOME"), ".supportrelay", "config.json"),
		`config file path ("" for environment only)`)
	rootCmd.PersistentFlags().StringVar(&dotEnvPath, "env-file", ".env", "dotenv file loaded before the environment is read")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file and environment, exiting on failure.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// setupLogging installs the default slog logger. The returned func flushes it.
func setupLogging(cfg *config.Config) func() {
	logger, sync, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)
	return func() { _ = sync() }
}

// stores holds the Firestore client and the stores built on it.
type stores struct {
	client   *firestore.Client
	threads  *state.ThreadStore
	messages *state.MessageStore
}

func (s *stores) Close() error { return s.client.Close() }

func openStores(ctx context.Context, cfg *config.Config, paths config.Paths) (*stores, error) {
	client, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID, cfg.Firestore.Database)
	if err != nil {
		return nil, fmt.Errorf("connect firestore: %w", err)
	}
	return &stores{
		client:   client,
		threads:  state.NewThreadStore(client, paths.Thread),
		messages: state.NewMessageStore(client, paths.Messages),
	}, nil
}
