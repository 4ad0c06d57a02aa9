package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"esp32-testserver/internal/logger"
	"esp32-testserver/internal/probe"
)

var errProbeFailed = errors.New("one or more checks failed")

func main() {
	if err := newProbeCommand().Execute(); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func newProbeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "esp32-probe <base-url>",
		Short:         "Check a test server the way an ESP32 would",
		Example:       "  esp32-probe http://192.168.1.20\n  esp32-probe --cbor http://localhost:5000",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runProbe,
	}
	cmd.Flags().Duration("timeout", 5*time.Second, "Timeout for each step")
	cmd.Flags().Bool("cbor", false, "Request CBOR instead of JSON from /json and /sensor")
	return cmd
}

func runProbe(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	useCBOR, _ := cmd.Flags().GetBool("cbor")

	p, err := probe.New(args[0], timeout)
	if err != nil {
		return err
	}
	p.CBOR = useCBOR

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Probing %s\n", p.BaseURL)
	results := p.Run(ctx)
	probe.Report(cmd.OutOrStdout(), results)

	if probe.Failed(results) {
		return errProbeFailed
	}
	return nil
}
