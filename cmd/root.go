// Package cmd defines the resona command line: the server itself plus client
// commands that talk to a running server.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/resona/internal/client"
	"github.com/JakeFAU/resona/internal/clock"
	"github.com/JakeFAU/resona/internal/clock/system"
	"github.com/JakeFAU/resona/internal/config"
)

// configKeyType is the key for storing the loaded Config in the context.
type configKeyType string

const configKey configKeyType = "config"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	baseURL    string
	apiKey     string
}

// newClock is the poller's time source. Tests replace it.
var newClock = func() clock.Timer { return system.New() }

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "resona",
		Short: "Research notes capture service",
		Long: `resona stages interview recordings, turns them into research notebooks in
Google Drive, and keeps the notes collected during each study.

Run "resona serve" to start the API server. The other commands talk to a
running server.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Config is loaded before every subcommand and handed down through the
		// command context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if flags.baseURL != "" {
				cfg.Client.BaseURL = flags.baseURL
			}
			if flags.apiKey != "" {
				cfg.Client.APIKey = flags.apiKey
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&flags.baseURL, "server", "", "server base URL (overrides client.base_url)")
	cmd.PersistentFlags().StringVar(&flags.apiKey, "api-key", "", "API key sent as X-API-Key")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newFilesCmd())
	cmd.AddCommand(newNotebookCmd())
	cmd.AddCommand(newProgressCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func configFrom(ctx context.Context) (config.Config, error) {
	cfg, ok := ctx.Value(configKey).(config.Config)
	if !ok {
		return config.Config{}, errors.New("config not loaded")
	}
	return cfg, nil
}

func clientFrom(ctx context.Context) (*client.Client, config.Config, error) {
	cfg, err := configFrom(ctx)
	if err != nil {
		return nil, config.Config{}, err
	}
	c := client.New(client.Config{
		BaseURL:    cfg.Client.BaseURL,
		APIKey:     cfg.Client.APIKey,
		Timeout:    cfg.Server.RequestTimeout + 30*time.Second,
		RetryCount: 2,
	}, nil)
	return c, cfg, nil
}
