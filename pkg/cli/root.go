package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Config carries process-level settings into the command tree.
type Config struct {
	OutputWriter io.Writer
}

func DefaultConfig() Config {
	return Config{OutputWriter: os.Stdout}
}

func NewRootCommand(cfg Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "nekomail",
		Short:         "Rate-limited HTML mail relay",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	if cfg.OutputWriter != nil {
		root.SetOut(cfg.OutputWriter)
	}

	root.AddCommand(
		NewServeCommand(),
		NewSendCommand(),
		NewStylesCommand(),
		NewVersionCommand(),
	)
	return root
}
