package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/telekom/nekomail/pkg/request"
)

func NewSendCommand() *cobra.Command {
	var (
		server  string
		timeout time.Duration
		raw     request.Raw
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send an email through a running nekomail server",
		Example: `  nekomail send --to cat@example.org --subject "Hello" --message "Meow" --template announcement
  NEKOMAIL_SERVER=https://mail.example.org nekomail send --to ... --subject ... --message ...`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := NewClient(WithServer(server), WithTimeout(timeout))
			if err != nil {
				return err
			}

			res, err := client.Send(cmd.Context(), raw)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if res.Message != "" {
				_, _ = fmt.Fprintln(w, res.Message)
			}
			for _, fe := range res.Errors {
				if fe.Path != "" {
					_, _ = fmt.Fprintf(w, "  %s: %s\n", fe.Path, fe.Msg)
				} else {
					_, _ = fmt.Fprintf(w, "  %s\n", fe.Msg)
				}
			}
			if res.RetryAfter != "" {
				_, _ = fmt.Fprintf(w, "retry after %ss\n", res.RetryAfter)
			}
			if !res.OK() {
				return fmt.Errorf("server answered %d", res.StatusCode)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&server, "server", getEnvString("NEKOMAIL_SERVER", "http://localhost:3000"), "Base URL of the nekomail server")
	flags.DurationVar(&timeout, "timeout", 30*time.Second, "HTTP timeout")
	flags.StringVar(&raw.To, "to", "", "Recipient address")
	flags.StringVar(&raw.Subject, "subject", "", "Subject line")
	flags.StringVar(&raw.Message, "message", "", "Message body")
	flags.StringVar(&raw.Template, "template", "", "Style: default, announcement or registration")

	return cmd
}
