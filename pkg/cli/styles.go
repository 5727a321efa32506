package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telekom/nekomail/pkg/mail"
	"github.com/telekom/nekomail/pkg/request"
)

func NewStylesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "styles",
		Short: "List the available email styles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, s := range mail.Styles() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
	cmd.AddCommand(newPreviewCommand())
	return cmd
}

func newPreviewCommand() *cobra.Command {
	var subject, message, to string

	cmd := &cobra.Command{
		Use:   "preview STYLE",
		Short: "Render a style to stdout as HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !mail.HasStyle(args[0]) {
				return fmt.Errorf("unknown style %q (available: %v)", args[0], mail.Styles())
			}
			body, err := mail.Render(args[0], request.EscapeHTML(subject), request.EscapeHTML(message), to)
			if err != nil {
				return fmt.Errorf("failed to render %s: %w", args[0], err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), body)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "Hello from NekoMail", "Subject to render")
	cmd.Flags().StringVar(&message, "message", "Meow~ this is a preview.", "Message to render")
	cmd.Flags().StringVar(&to, "to", "cat@example.org", "Recipient to render")
	return cmd
}
