package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sentinelmesh/internal/events"
	"sentinelmesh/internal/logging"
	"sentinelmesh/internal/producer"
)

var emitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Send a security event to a running engine",
	Example: `  sentinelmesh emit --event login_failed --ip 203.0.113.7 --path /login
  sentinelmesh emit --url http://engine:8080 --api-key $KEY --event missing_token`,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		apiKey, _ := cmd.Flags().GetString("api-key")
		service, _ := cmd.Flags().GetString("service")
		eventType, _ := cmd.Flags().GetString("event")
		ip, _ := cmd.Flags().GetString("ip")
		path, _ := cmd.Flags().GetString("path")
		userID, _ := cmd.Flags().GetString("user-id")

		if apiKey == "" {
			apiKey = cfg.Auth.IngestToken
		}
		ev := producer.Event{Type: events.Type(eventType), IP: ip, Path: path}
		if userID != "" {
			ev.UserID = &userID
		}

		client := producer.New(url, service, apiKey, logging.Discard())
		if err := client.Send(cmd.Context(), ev); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "stored")
		return nil
	},
}

func init() {
	emitCmd.Flags().String("url", "http://localhost:8080", "engine base URL")
	emitCmd.Flags().String("api-key", "", "ingest token (defaults to auth.ingest_token)")
	emitCmd.Flags().String("service", "cli", "producing service name")
	emitCmd.Flags().String("event", "", "event type, e.g. login_failed")
	emitCmd.Flags().String("ip", "", "source ip")
	emitCmd.Flags().String("path", "", "request path")
	emitCmd.Flags().String("user-id", "", "user id, if known")
	_ = emitCmd.MarkFlagRequired("event")
}
