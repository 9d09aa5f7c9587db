package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"relay/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification through every configured transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			n := cfg.Notifications
			if !n.SystemError {
				fmt.Fprintln(out, "Notifications are disabled (set notifications.system_error = true)")
				return nil
			}
			var transports []string
			if n.NtfyTopic != "" {
				transports = append(transports, "ntfy")
			}
			if n.MailSendCommand != "" && len(n.MailTo) > 0 {
				transports = append(transports, "mail")
			}
			if len(transports) == 0 {
				fmt.Fprintln(out, "No notification transport configured (set ntfy_topic or mail_send_command and mail_to)")
				return nil
			}
			if err := notifications.NewService(cfg).TestNotification(cmd.Context()); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintf(out, "Test notification sent via %s\n", strings.Join(transports, ", "))
			return nil
		},
	}
}
