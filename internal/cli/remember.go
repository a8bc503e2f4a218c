package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var rememberMeta []string

var rememberCmd = &cobra.Command{
	Use:   "remember <content>",
	Short: "Append an entry to today's short-term memory",
	Long: `Append a timestamped entry to today's daily memory file.
Short-term entries are searchable immediately and compacted after the
retention window expires.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemember,
}

func init() {
	rememberCmd.Flags().StringArrayVar(&rememberMeta, "meta", nil, "metadata as key=value (repeatable)")
	rootCmd.AddCommand(rememberCmd)
}

func runRemember(cmd *cobra.Command, args []string) error {
	content := strings.Join(args, " ")

	metadata, err := parseMetadata(rememberMeta)
	if err != nil {
		return err
	}

	mgr, _, cleanup, err := openManager()
	if err != nil {
		return err
	}
	defer cleanup()

	now := time.Now()
	if err := mgr.AppendToShortTerm(requestContext(), content, now, metadata); err != nil {
		return err
	}

	cmd.Printf("Remembered in %s\n", mgr.ShortTermPath(now))
	return nil
}

func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	meta := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata %q, expected key=value", pair)
		}
		meta[key] = value
	}
	return meta, nil
}
