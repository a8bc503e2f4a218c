package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index <path>...",
	Short: "Index markdown files into the document collection",
	Long: `Index markdown files or directories into the searchable document
collection. Unlike workspace memory files, documents keep their index
entries until removed with "bitwiseai forget".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

var forgetCmd = &cobra.Command{
	Use:   "forget <path>",
	Short: "Remove a file from the search index",
	Args:  cobra.ExactArgs(1),
	RunE:  runForget,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(forgetCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	mgr, _, cleanup, err := openManager()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := requestContext()
	var files, chunks int

	for _, root := range args {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return nil
			}
			if !isMarkdownPath(path) {
				return nil
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}

			result, err := mgr.IndexDocument(ctx, abs, string(data))
			if err != nil {
				return fmt.Errorf("failed to index %s: %w", path, err)
			}

			files++
			chunks += result.ChunksAdded + result.ChunksReused
			return nil
		})
		if err != nil {
			return err
		}
	}

	if files == 0 {
		cmd.Println("No markdown files found.")
		return nil
	}

	cmd.Printf("Indexed %d file(s), %d chunk(s)\n", files, chunks)
	return nil
}

func runForget(cmd *cobra.Command, args []string) error {
	mgr, _, cleanup, err := openManager()
	if err != nil {
		return err
	}
	defer cleanup()

	abs, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	if err := mgr.RemoveIndex(requestContext(), abs); err != nil {
		return err
	}

	cmd.Printf("Removed %s from the index\n", abs)
	return nil
}

func isMarkdownPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == ".markdown"
}
