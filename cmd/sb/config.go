package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zulandar/signalbox/internal/config"
)

const redacted = "[redacted]"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect signalbox configuration",
	}
	cmd.AddCommand(newConfigCheckCmd())
	return cmd
}

func newConfigCheckCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and print the effective values",
		Long:  "Loads the config file and environment the same way serve does, then prints the result with secrets redacted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(redact(*cfg))
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "config OK")
			fmt.Fprint(out, string(data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to signalbox config file (optional)")
	return cmd
}

// redact blanks credentials. cfg is a copy.
func redact(cfg config.Config) config.Config {
	for _, s := range []*string{
		&cfg.Slack.SigningSecret,
		&cfg.Slack.BotToken,
		&cfg.Agent.APIKey,
		&cfg.Agent.WebhookSecret,
		&cfg.OTel.Headers,
	} {
		if *s != "" {
			*s = redacted
		}
	}
	return cfg
}
