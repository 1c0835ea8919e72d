package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/supportrelay/internal/config"
	"github.com/user/supportrelay/internal/relay"
	"github.com/user/supportrelay/internal/slack"
	"github.com/user/supportrelay/internal/types"
)

func init() {
	rootCmd.AddCommand(deliverCmd, sendTestCmd)
}

var deliverCmd = &cobra.Command{
	Use:   "deliver <userId> <messageId>",
	Short: "Run outbound delivery for one pending message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		flush := setupLogging(cfg)
		defer flush()

		paths, err := cfg.Validate(config.DeliverKeys...)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		st, err := openStores(ctx, cfg, paths)
		if err != nil {
			return err
		}
		defer st.Close()

		ref := types.MessageRef{UserID: types.UserID(args[0]), MessageID: types.MessageID(args[1])}
		msg, err := st.messages.Get(ctx, ref)
		if err != nil {
			return err
		}
		if msg.Status != types.StatusPending {
			return fmt.Errorf("message %s is %s, not pending", ref, msg.Status)
		}

		outbound := relay.NewOutbound(st.threads, st.messages, slack.New(cfg.Slack.BotToken), relay.OutboundConfig{
			Channel:   cfg.Slack.ChannelID,
			ProjectID: cfg.ProjectID,
			Database:  cfg.Firestore.Database,
			BotID:     cfg.Slack.BotID,
		}, nil)
		outbound.Handle(ctx, types.MessageCreated{Ref: ref, Message: *msg})

		msg, err = st.messages.Get(ctx, ref)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Message %s: %s", ref, msg.Status)
		if msg.SlackThreadTS != "" {
			fmt.Fprintf(os.Stdout, " (thread %s)", msg.SlackThreadTS)
		}
		fmt.Fprintln(os.Stdout)
		if msg.Status == types.StatusFailed {
			return fmt.Errorf("delivery failed")
		}
		return nil
	},
}

var sendTestCmd = &cobra.Command{
	Use:   "send-test <userId> [text...]",
	Short: "Create a pending user message for a running relay to deliver",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		flush := setupLogging(cfg)
		defer flush()

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

		text := "Test support message"
		if len(args) > 1 {
			text = strings.Join(args[1:], " ")
		}
		userID := types.UserID(args[0])
		id, err := st.messages.Insert(ctx, userID, &types.Message{
			Message: text,
			Role:    types.RoleUser,
			Status:  types.StatusPending,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Created message %s for user %s\n", id, userID)
		return nil
	},
}
