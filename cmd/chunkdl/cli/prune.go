package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vertextoedge/chunkdl/internal/adapter/filesystem"
	"github.com/vertextoedge/chunkdl/internal/port"
)

func newPruneCmd(root *rootOptions) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove stale checkpoints and abandoned partial files",
		Long: `Prune deletes checkpoints not updated within maintenance.checkpoint_max_age.
With --output, partial files older than the same age are removed from that
directory as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer root.closeApp()
			app := root.app

			var partials port.PartialFiles
			if outputDir != "" {
				files, err := filesystem.NewManager(outputDir)
				if err != nil {
					return err
				}
				partials = files
			}

			report, err := app.Maintenance(partials).RunOnce()
			if err != nil {
				return err
			}

			stats, err := app.Checkpoints.Stats()
			if err != nil {
				return fmt.Errorf("failed to read checkpoint stats: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pruned %d checkpoint(s), removed %d partial file(s)\n", report.Checkpoints, report.Partials)
			fmt.Fprintf(out, "%d checkpoint(s) remain, %s resumable, %d failed\n",
				stats.Count, humanize.IBytes(uint64(stats.BytesStored)), stats.FailedCount)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Download directory to clean of partial files")

	return cmd
}
