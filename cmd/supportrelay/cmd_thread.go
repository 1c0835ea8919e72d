package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/supportrelay/internal/config"
	"github.com/user/supportrelay/internal/types"
)

func init() {
	rootCmd.AddCommand(threadCmd)
	threadCmd.AddCommand(threadGetCmd, threadResolveCmd)
}

var threadCmd = &cobra.Command{
	Use:   "thread",
	Short: "Inspect user to thread bindings",
}

var threadGetCmd = &cobra.Command{
	Use:   "get <userId>",
	Short: "Show the Slack thread bound to a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		paths, err := cfg.Validate(config.ProvisionKeys...)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		st, err := openStores(ctx, cfg, paths)
		if err != nil {
			return err
		}
		defer st.Close()

		b, err := st.threads.GetBinding(ctx, types.UserID(args[0]))
		if err != nil {
			return err
		}
		if b == nil {
			fmt.Println("No thread bound.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "USER\tTHREAD\tCREATED")
		fmt.Fprintf(w, "%s\t%s\t%s\n", args[0], b.SlackThreadTS, b.ThreadCreatedAt.Format("2006-01-02 15:04:05"))
		return w.Flush()
	},
}

var threadResolveCmd = &cobra.Command{
	Use:   "resolve <threadTs>",
	Short: "Find the user that owns a Slack thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		paths, err := cfg.Validate(config.ProvisionKeys...)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		st, err := openStores(ctx, cfg, paths)
		if err != nil {
			return err
		}
		defer st.Close()

		userID, err := st.threads.ResolveUserByThread(ctx, types.ThreadTS(args[0]))
		var amb *types.AmbiguousThreadError
		switch {
		case errors.As(err, &amb):
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "BINDING\t")
			for _, p := range amb.Paths {
				fmt.Fprintf(w, "%s\t\n", p)
			}
			w.Flush()
			return err
		case err != nil:
			return err
		}
		fmt.Fprintln(os.Stdout, userID)
		return nil
	},
}
