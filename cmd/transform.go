package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/lakeingest/internal/config"
)

// newTransformCmd creates the 'transform' subcommand.
func newTransformCmd() *cobra.Command {
	var (
		sources     []string
		processDate string
	)

	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Rebuild curated Parquet partitions from the raw zone",
		Long: `Reads every staged object for each source, normalizes the records and
replaces {curated_prefix}/{source}/dt={process_date}/data.parquet. Sources
with nothing staged are skipped.`,
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime) error {
			if processDate != "" {
				if err := config.ValidateProcessDate(processDate); err != nil {
					return err
				}
			}

			names, err := rt.app.TransformSources(sources)
			if err != nil {
				return err
			}
			transformer, err := rt.app.Transformer(processDate)
			if err != nil {
				return fmt.Errorf("build transformer: %w", err)
			}
			if _, err := transformer.Run(cmd.Context(), names); err != nil {
				return fmt.Errorf("transform failed: %w", err)
			}
			return nil
		}),
	}
	cmd.Flags().StringSliceVar(&sources, "source", nil, "only transform these sources (repeatable)")
	cmd.Flags().StringVar(&processDate, "process-date", "", "partition label (defaults to transform.process_date)")
	return cmd
}
