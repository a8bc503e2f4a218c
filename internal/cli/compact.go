package cli

import (
	"github.com/spf13/cobra"
)

var compactDays int

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Compact expired short-term memory files",
	Long: `Apply the configured compaction strategy to daily memory files
older than the retention window. Depending on the strategy, expired
files are summarized into long-term memory, moved to the archive, or
deleted.`,
	RunE: runCompact,
}

func init() {
	compactCmd.Flags().IntVar(&compactDays, "days", -1, "days of daily files to keep, -1 uses the configured retention")
	rootCmd.AddCommand(compactCmd)
}

func runCompact(cmd *cobra.Command, args []string) error {
	mgr, cfg, cleanup, err := openManager()
	if err != nil {
		return err
	}
	defer cleanup()

	days := compactDays
	if days < 0 {
		days = cfg.ShortTerm.RetentionDays
	}

	result, err := mgr.CompactShortTerm(requestContext(), days)
	if err != nil {
		return err
	}

	if result.FilesCompacted == 0 {
		cmd.Println("Nothing to compact.")
		return nil
	}

	cmd.Printf("Compacted %d file(s): %d archived, %d summaries promoted\n",
		result.FilesCompacted, result.FilesArchived, result.SummariesPromoted)
	return nil
}
