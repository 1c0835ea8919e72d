package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/supportrelay/internal/config"
	"github.com/user/supportrelay/internal/gcp"
	"github.com/user/supportrelay/internal/lifecycle"
	"github.com/user/supportrelay/internal/provision"
)

func init() {
	rootCmd.AddCommand(provisionCmd)
}

// provisionPolicy retries every failure but a finished context, up to three
// attempts.
func provisionPolicy() *lifecycle.RetryPolicy {
	p := lifecycle.DefaultRetryPolicy()
	p.Retryable = provision.Retryable
	return p
}

var provisionCmd = &cobra.Command{
	Use:   "provision-index",
	Short: "Create the thread lookup and pending message indexes (safe to re-run)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		flush := setupLogging(cfg)
		defer flush()

		paths, err := cfg.Validate(config.ProvisionKeys...)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		p, err := provision.New(ctx, provision.IndexRequest{
			ProjectID:    cfg.ProjectID,
			Database:     cfg.Firestore.Database,
			ThreadGroup:  paths.Thread.CollectionID(),
			MessageGroup: paths.Messages.CollectionID(),
		}, gcp.ClientOptionsFromEnv()...)
		if err != nil {
			return err
		}

		targets := p.Targets()
		outcomes := make([]provision.Outcome, len(targets))
		var g errgroup.Group
		for i, t := range targets {
			g.Go(func() error {
				return provisionPolicy().Execute(ctx, func(ctx context.Context) error {
					var perr error
					outcomes[i], perr = p.Provision(ctx, t)
					if perr != nil {
						slog.Warn("index provisioning attempt failed", "index", t.String(), "error", perr)
					}
					return perr
				})
			})
		}
		err = g.Wait()

		for i, t := range targets {
			fmt.Fprintf(os.Stdout, "Index %s: %s\n", t, outcomes[i])
		}
		return err
	},
}
