package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory index statistics",
	Long:  `Show the size of the memory index: files, chunks, vectors, and cache.`,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print statistics as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	mgr, _, cleanup, err := openManager()
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := mgr.Stats(requestContext())
	if err != nil {
		return err
	}

	if statsJSON {
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode statistics: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Files:     %d\n", stats.TotalFiles)
	cmd.Printf("Chunks:    %d\n", stats.TotalChunks)
	cmd.Printf("Vectors:   %d\n", stats.TotalVectors)
	cmd.Printf("Cache:     %d entries\n", stats.CacheEntries)
	cmd.Printf("DB size:   %s\n", formatBytes(stats.DBSizeBytes))
	if stats.TotalChunks > 0 {
		cmd.Printf("Avg chunk: %.0f bytes\n", stats.AvgChunkBytes)
	}

	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
