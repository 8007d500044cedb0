package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/zulandar/signalbox/internal/agent"
	slackadapter "github.com/zulandar/signalbox/internal/telegraph/slack"
)

func newSignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Compute webhook signatures for manual testing",
		Long:  "Prints the signature headers a webhook sender would attach to a body, for use with curl against a running relay.",
	}

	cmd.AddCommand(newSignSlackCmd())
	cmd.AddCommand(newSignAgentCmd())
	return cmd
}

func newSignSlackCmd() *cobra.Command {
	var (
		secret    string
		timestamp int64
		body      string
		bodyFile  string
	)

	cmd := &cobra.Command{
		Use:   "slack",
		Short: "Sign a Slack Events API body",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readBody(cmd, body, bodyFile)
			if err != nil {
				return err
			}
			if timestamp == 0 {
				timestamp = time.Now().Unix()
			}
			ts := strconv.FormatInt(timestamp, 10)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n", slackadapter.HeaderTimestamp, ts)
			fmt.Fprintf(out, "%s: %s\n", slackadapter.HeaderSignature, slackadapter.Sign(secret, ts, data))
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv("SLACK_SIGNING_SECRET"), "signing secret (default $SLACK_SIGNING_SECRET)")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "unix timestamp to sign with (default now)")
	addBodyFlags(cmd, &body, &bodyFile)
	return cmd
}

func newSignAgentCmd() *cobra.Command {
	var (
		secret   string
		delivery string
		body     string
		bodyFile string
	)

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Sign an agent webhook body",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readBody(cmd, body, bodyFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n", agent.HeaderSignature, agent.SignWebhook(secret, data))
			if delivery != "" {
				fmt.Fprintf(out, "%s: %s\n", agent.HeaderDelivery, delivery)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv("ROOAAK_WEBHOOK_SECRET"), "webhook secret (default $ROOAAK_WEBHOOK_SECRET)")
	cmd.Flags().StringVar(&delivery, "delivery", "", "delivery id to print alongside the signature")
	addBodyFlags(cmd, &body, &bodyFile)
	return cmd
}

func addBodyFlags(cmd *cobra.Command, body, bodyFile *string) {
	cmd.Flags().StringVar(body, "body", "", "raw request body")
	cmd.Flags().StringVar(bodyFile, "body-file", "", "read the body from a file (- for stdin)")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file")
}

// readBody returns the body exactly as given; signatures cover raw bytes.
func readBody(cmd *cobra.Command, body, bodyFile string) ([]byte, error) {
	switch bodyFile {
	case "":
		return []byte(body), nil
	case "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	default:
		data, err := os.ReadFile(bodyFile)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return data, nil
	}
}
