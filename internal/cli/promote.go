package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

var promoteSummary string

var promoteCmd = &cobra.Command{
	Use:   "promote <content>",
	Short: "Promote an entry to long-term memory",
	Long: `Append an entry to the curated long-term memory file.
Long-term entries survive compaction and receive a ranking boost in
search results.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPromote,
}

func init() {
	promoteCmd.Flags().StringVar(&promoteSummary, "summary", "", "one-line summary stored with the entry")
	rootCmd.AddCommand(promoteCmd)
}

func runPromote(cmd *cobra.Command, args []string) error {
	content := strings.Join(args, " ")

	mgr, _, cleanup, err := openManager()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := mgr.PromoteToLongTerm(requestContext(), content, promoteSummary); err != nil {
		return err
	}

	cmd.Printf("Promoted to %s\n", mgr.LongTermPath())
	return nil
}
