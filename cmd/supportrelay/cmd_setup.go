package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/supportrelay/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgPath == "" {
			return fmt.Errorf("no config file (--config is empty)")
		}
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("supportrelay setup")
		fmt.Println("Press Enter to accept the value shown in brackets.")
		fmt.Println()

		cfg.ProjectID = prompt(scanner, "Google Cloud project id", cfg.ProjectID)
		cfg.Firestore.Database = prompt(scanner, "Firestore database", cfg.Firestore.Database)
		cfg.Firestore.ThreadPath = prompt(scanner, "Thread document path", cfg.Firestore.ThreadPath)
		cfg.Firestore.MessagesPath = prompt(scanner, "Messages collection path", cfg.Firestore.MessagesPath)
		if _, err := cfg.Paths(); err != nil {
			return err
		}

		cfg.Slack.ChannelID = prompt(scanner, "Slack support channel id", cfg.Slack.ChannelID)
		cfg.Slack.BotID = prompt(scanner, "Slack bot user id (optional)", cfg.Slack.BotID)
		cfg.Slack.BotToken = promptSecret(scanner, "Slack bot token", cfg.Slack.BotToken)
		cfg.Slack.SigningSecret = promptSecret(scanner, "Slack signing secret", cfg.Slack.SigningSecret)
		cfg.HTTP.Listen = prompt(scanner, "HTTP listen address", cfg.HTTP.Listen)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		if err := cfg.Require(config.ServeKeys...); err != nil {
			fmt.Println("Still needed before serve:", err)
		}
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}

// promptSecret is prompt without echoing the current value.
func promptSecret(scanner *bufio.Scanner, label, current string) string {
	shown := ""
	if current != "" {
		shown = "***"
	}
	if v := prompt(scanner, label, shown); v != shown {
		return v
	}
	return current
}
