package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	searchLimit    int
	searchMinScore float64
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memory with hybrid ranking",
	Long: `Search the memory index. Vector similarity and keyword relevance
are fused into a single score, with curated long-term entries ranked
slightly higher than daily notes.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum number of results")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", -1, "minimum fused score, negative uses the configured default")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	mgr, cfg, cleanup, err := openManager()
	if err != nil {
		return err
	}
	defer cleanup()

	limit := searchLimit
	if !cmd.Flags().Changed("limit") && cfg.Search.MaxResults > 0 {
		limit = cfg.Search.MaxResults
	}

	resp, err := mgr.Search(requestContext(), args[0], limit, searchMinScore)
	if err != nil {
		return err
	}

	if searchJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(resp.Results) == 0 {
		cmd.Println("No results.")
		return nil
	}

	if resp.Degraded {
		cmd.Println("Note: embeddings unavailable, ranked by keyword relevance only.")
	}

	for i, res := range resp.Results {
		cmd.Printf("%d. [%.3f] %s (%s, lines %d-%d)\n", i+1, res.Score, res.Path, res.Source, res.StartLine, res.EndLine)
		cmd.Printf("   %s\n", res.Snippet)
	}

	return nil
}
