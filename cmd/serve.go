package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/resona/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Starts the HTTP API, the progress janitor and the notebook workflow.
Stops gracefully on SIGINT or SIGTERM after in-flight notebook runs finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			app, err := server.Build(cmd.Context(), &cfg)
			if err != nil {
				return fmt.Errorf("build server: %w", err)
			}
			if err := app.Run(cmd.Context()); err != nil {
				zap.L().Error("server stopped with error", zap.Error(err))
				return err
			}
			return nil
		},
	}
}
