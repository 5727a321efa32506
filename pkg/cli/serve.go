// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/telekom/nekomail/pkg/api"
	"github.com/telekom/nekomail/pkg/config"
	"github.com/telekom/nekomail/pkg/dedup"
	"github.com/telekom/nekomail/pkg/dispatch"
	"github.com/telekom/nekomail/pkg/mail"
	"github.com/telekom/nekomail/pkg/system"
	"github.com/telekom/nekomail/pkg/version"
)

func NewServeCommand() *cobra.Command {
	opts := ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.Debug, "debug", getEnvBool("NEKOMAIL_DEBUG", false), "Enable debug level logging and CORS for local frontends")
	flags.StringVar(&opts.ConfigPath, "config", getEnvString("NEKOMAIL_CONFIG_PATH", ""), "Path to an optional YAML config file")
	flags.StringVar(&opts.ListenAddress, "listen-address", getEnvString("NEKOMAIL_LISTEN_ADDRESS", ""), "Address to listen on (overrides config and PORT)")
	flags.StringVar(&opts.SendTimeout, "send-timeout", getEnvString("NEKOMAIL_SEND_TIMEOUT", ""), "How long a request waits for the relay (e.g. '10s')")
	flags.StringVar(&opts.ShutdownTimeout, "shutdown-timeout", getEnvString("NEKOMAIL_SHUTDOWN_TIMEOUT", "30s"), "How long to wait for the relay to drain on shutdown")

	return cmd
}

func runServe(ctx context.Context, opts ServeOptions) error {
	zlog, err := system.SetupLogger(opts.Debug)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	defer func() { _ = zlog.Sync() }()
	log := zlog.Sugar()
	log.With("version", version.Version).Info("Starting nekomail api")
	opts.Print(log)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if opts.ListenAddress != "" {
		cfg.Server.ListenAddress = opts.ListenAddress
	}
	sendTimeout, err := parseDuration("send-timeout", opts.SendTimeout, config.DefaultSendTimeout)
	if err != nil {
		log.Warn(err)
	}
	if opts.SendTimeout != "" {
		cfg.Mail.SendTimeout = sendTimeout
	}
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	shutdownTimeout, err := parseDuration("shutdown-timeout", opts.ShutdownTimeout, 30*time.Second)
	if err != nil {
		log.Warn(err)
	}

	relay := mail.NewSMTPRelay(cfg.Mail, log)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := relay.Stop(stopCtx); err != nil {
			log.Warnw("Mail relay did not stop cleanly", "error", err)
		}
	}()

	cache := dedup.New(dedup.WithLogger(log))
	cache.Start(ctx)

	sendController := api.NewSendController(log, cfg, api.SendDependencies{
		Dedup: cache,
		Dispatcher: dispatch.New(relay,
			dispatch.WithTimeout(cfg.Mail.SendTimeout),
			dispatch.WithLogger(log.Named("dispatch"))),
	})
	defer sendController.Close()

	server := api.NewServer(zlog, cfg, opts.Debug)
	defer server.Close()

	if err := server.RegisterAll([]api.APIController{sendController}); err != nil {
		return fmt.Errorf("error registering controllers: %w", err)
	}

	return server.Listen(ctx)
}
