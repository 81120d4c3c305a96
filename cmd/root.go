// Package cmd defines and implements the CLI commands for the crawlai executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agarwalvipin/crawlai/internal/config"
	"github.com/agarwalvipin/crawlai/internal/crawler"
	"github.com/agarwalvipin/crawlai/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawlai",
		Short: "A recursive website crawler with pluggable content extraction.",
		Long: `crawlai crawls a website breadth-first within its domain scope,
following pagination and rendering script-heavy pages headlessly when
needed, and writes one JSON record per accepted page.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./crawlai.yaml)")

	cmd.AddCommand(newCrawlCmd())
	return cmd
}

// Execute is the main entry point. Exit codes: 0 on success, 1 for an
// invalid or unreachable start URL, 2 when the output file cannot be
// written.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "crawlai: %v\n", err)
		if errors.Is(err, crawler.ErrOutputFile) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// buildLogger constructs the zap logger from configuration.
func buildLogger(v *viper.Viper) (*zap.Logger, error) {
	return logging.New(v.GetBool("logging.development"))
}

// loadViper builds the configured viper instance, honoring --config.
func loadViper() (*viper.Viper, error) {
	v, err := config.NewViper(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return v, nil
}
