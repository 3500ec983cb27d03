package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newIngestCmd creates the 'ingest' subcommand.
func newIngestCmd() *cobra.Command {
	var sources []string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch every configured source and stage the responses",
		Long: `Resolves a watermark per source, fetches {base_url}{path} with an
updated_since filter and writes each response unchanged to
{raw_prefix}/{source}/dt=YYYY-MM-DD/{unix}.json.`,
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime) error {
			cfg := rt.app.Config()

			selected, err := cfg.SelectSources(sources)
			if err != nil {
				return err
			}
			cfg.Sources = selected
			if err := cfg.RequireEndpoints(); err != nil {
				return err
			}

			ingestor, err := rt.app.Ingestor()
			if err != nil {
				return fmt.Errorf("build ingestor: %w", err)
			}
			if _, err := ingestor.Run(cmd.Context(), selected); err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}
			return nil
		}),
	}
	cmd.Flags().StringSliceVar(&sources, "source", nil, "only ingest these sources (repeatable)")
	return cmd
}
