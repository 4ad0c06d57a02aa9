package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"esp32-testserver/internal/banner"
	"esp32-testserver/internal/common"
	"esp32-testserver/internal/config"
	"esp32-testserver/internal/logger"
	"esp32-testserver/internal/server"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "esp32-testserver",
		Short:         "HTTP test server for ESP32 connectivity checks",
		Long:          "Serves a status page, a plain-text echo, a JSON greeting and a mock sensor reading so an ESP32 can verify it reaches the network.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	flags := cmd.Flags()
	flags.String("host", "", "Address to bind (env HOST)")
	flags.IntP("port", "p", 0, "HTTP port (env HTTP_PORT)")
	flags.Int("https-port", 0, "HTTPS port (env HTTPS_PORT)")
	flags.String("tls", "", "TLS mode: off, selfsigned, file or acme (env TLS_MODE)")
	flags.String("log-level", "", "DEBUG, INFO, WARN or ERROR (env LOG_LEVEL)")
	flags.String("env-file", ".env", "File with environment defaults")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg := config.Load(envFile)
	if err := applyFlags(cfg, cmd.Flags()); err != nil {
		return err
	}

	logger.SetLevel(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	banner.Print(cmd.OutOrStdout(), banner.Info{
		HTTPPort:  cfg.HTTPPort,
		HTTPSPort: cfg.HTTPSPort,
		TLS:       cfg.TLSEnabled(),
		Addresses: common.LocalIPv4s(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.New(cfg).Run(ctx); err != nil {
		logger.Fatalf("Server failed: %v", err)
	}
	logger.Info("Server stopped")
	return nil
}

// applyFlags overrides cfg with every flag set on the command line.
func applyFlags(cfg *config.Config, flags *pflag.FlagSet) error {
	var err error
	if flags.Changed("host") {
		if cfg.Host, err = flags.GetString("host"); err != nil {
			return err
		}
	}
	if flags.Changed("port") {
		if cfg.HTTPPort, err = flags.GetInt("port"); err != nil {
			return err
		}
	}
	if flags.Changed("https-port") {
		if cfg.HTTPSPort, err = flags.GetInt("https-port"); err != nil {
			return err
		}
	}
	if flags.Changed("tls") {
		mode, err := flags.GetString("tls")
		if err != nil {
			return err
		}
		cfg.TLSMode = strings.ToLower(mode)
	}
	if flags.Changed("log-level") {
		if cfg.LogLevel, err = flags.GetString("log-level"); err != nil {
			return err
		}
	}
	return nil
}
