package cli

import (
	"github.com/spf13/cobra"
)

var syncForce bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rebuild the memory index from workspace files",
	Long: `Walk the memory workspace and reconcile the search index with it.
Unchanged files are skipped by content hash unless --force is given.
Index records whose files no longer exist are removed.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "reindex files even when their content hash is unchanged")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	mgr, _, cleanup, err := openManager()
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := mgr.Sync(requestContext(), syncForce)
	if err != nil {
		return err
	}

	cmd.Printf("Synced %d file(s), removed %d, indexed %d chunk(s)\n",
		result.FilesSynced, result.FilesRemoved, result.ChunksIndexed)

	if len(result.Errors) > 0 {
		cmd.Printf("Completed with %d error(s):\n", len(result.Errors))
		for _, e := range result.Errors {
			cmd.Printf("- %s\n", e)
		}
	}

	return nil
}
