package cli

import (
	"encoding/json"
	"fmt"

	"github.com/SyJarvis/bitwiseai/internal/config"
	"github.com/spf13/cobra"
)

var configureShow bool

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Run interactive configuration wizard",
	Long: `Run an interactive configuration wizard to set up BitwiseAI.
The wizard will guide you through the workspace location, embedding
credentials, and retention settings. With --show, print the effective
configuration (file, environment, and defaults merged) and exit.`,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().BoolVar(&configureShow, "show", false, "print the effective configuration without changing it")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	if configureShow {
		return showConfig(cmd)
	}

	wizard := config.NewWizard()
	cfg, err := wizard.Run()
	if err != nil {
		return fmt.Errorf("configuration failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	loader := config.NewLoader(cfgFile)
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nConfiguration saved to: %s\n", loader.GetConfigPath())
	fmt.Fprintln(cmd.OutOrStdout(), "\nYou can now start BitwiseAI with: bitwiseai start")

	return nil
}

func showConfig(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Never echo the credential itself
	if cfg.Embedding.APIKey != "" {
		cfg.Embedding.APIKey = "[set]"
	}

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
