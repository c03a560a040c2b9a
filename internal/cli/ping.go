package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	neoogm "github.com/saulfrancisco-ruizacevedo/go-neoogm"
)

func newPingCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the connection configured by the NEO4J_* environment variables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := neoogm.LoadConfig()
			if err != nil {
				return err
			}
			executor, err := neoogm.NewNeo4jExecutor(cfg, neoogm.WithExecutorLogger(opts.logger()))
			if err != nil {
				return err
			}
			defer executor.Close(cmd.Context())

			if err := executor.Verify(cmd.Context()); err != nil {
				return fmt.Errorf("could not connect to %s: %w", cfg.URI, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "connected to %s (database %s)\n", cfg.URI, cfg.Database)
			return nil
		},
	}
}
