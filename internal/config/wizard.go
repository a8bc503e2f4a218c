package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
}

// NewWizard creates a new configuration wizard
func NewWizard() *Wizard {
	return &Wizard{
		reader: bufio.NewReader(os.Stdin),
	}
}

// Run runs the interactive configuration wizard
func (w *Wizard) Run() (*Config, error) {
	fmt.Println("=== BitwiseAI Configuration Wizard ===")
	fmt.Println()

	cfg := DefaultConfig()
	validator := NewValidator()

	// Workspace
	fmt.Println("Workspace:")
	fmt.Print("Workspace directory (press Enter for ~/.bitwiseai/workspace): ")
	workspace, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if workspace != "" {
		cfg.WorkspaceDir = workspace
	}

	fmt.Println()

	// Embeddings
	fmt.Println("Embeddings (skip to run keyword-only search):")
	fmt.Println()

	for {
		fmt.Print("OpenAI API Key (press Enter to skip): ")
		key, err := w.readLine()
		if err != nil {
			return nil, err
		}

		if key == "" {
			cfg.Embedding.Provider = "none"
			break
		}

		if err := validator.ValidateAPIKey(key, "openai"); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		cfg.Embedding.APIKey = key
		break
	}

	if cfg.Embedding.Provider != "none" {
		fmt.Print("Embedding model [text-embedding-3-small]: ")
		model, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if model != "" {
			if err := validator.ValidateEmbeddingModel(model); err != nil {
				fmt.Printf("Warning: %v, using default (text-embedding-3-small)\n", err)
			} else {
				cfg.Embedding.Model = model
			}
		}
	}

	fmt.Println()

	// File watching
	fmt.Println("File Watching:")
	fmt.Print("Watch the workspace for changes? (y/n) [y]: ")
	watch, err := w.readLine()
	if err != nil {
		return nil, err
	}
	cfg.Sync.Watch = watch == "" || strings.ToLower(watch) == "y"

	fmt.Println()

	// Retention
	fmt.Println("Short-term Memory:")
	fmt.Print("Days to keep daily files before compaction [7]: ")
	days, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if days != "" {
		n, convErr := strconv.Atoi(days)
		if convErr != nil || n < 0 {
			fmt.Printf("Warning: invalid retention %q, using default (7)\n", days)
		} else {
			cfg.ShortTerm.RetentionDays = n
		}
	}

	fmt.Println()
	fmt.Println("Compaction strategy options:")
	fmt.Println("  summarize - Promote a summary to MEMORY.md, then archive (default)")
	fmt.Println("  archive   - Move expired files to archive/")
	fmt.Println("  delete    - Remove expired files")
	fmt.Print("Compaction strategy [summarize]: ")
	strategy, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if strategy != "" {
		if err := validator.ValidateStrategy(strategy); err != nil {
			fmt.Printf("Warning: %v, using default (summarize)\n", err)
		} else {
			cfg.ShortTerm.Strategy = strategy
		}
	}

	fmt.Println()

	// Log Level
	fmt.Println("Logging:")
	fmt.Print("Log level (debug/info/warn/error) [info]: ")
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Printf("Warning: %v, using default (info)\n", err)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Println()
	fmt.Println("Configuration complete!")

	return cfg, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
