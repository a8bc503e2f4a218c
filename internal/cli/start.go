package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/SyJarvis/bitwiseai/internal/config"
	"github.com/SyJarvis/bitwiseai/internal/daemon"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the BitwiseAI daemon service",
	Long: `Start the BitwiseAI daemon service in the foreground.
The daemon watches the memory workspace, keeps the search index fresh,
and runs scheduled compaction until it receives SIGINT or SIGTERM.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Check if daemon is already running
	pidFile := pidFilePath(cfg)
	if isRunning(pidFile) {
		return fmt.Errorf("daemon is already running (PID file: %s)", pidFile)
	}

	log, err := newLogger(cfg, true)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}

	if err := d.Start(); err != nil {
		return err
	}

	cmd.Printf("BitwiseAI daemon started (workspace: %s)\n", cfg.WorkspaceDir)

	// Block until a shutdown signal arrives
	d.Wait()

	return nil
}

func pidFilePath(cfg *config.Config) string {
	return filepath.Join(daemon.RuntimeDir(cfg.Logging.File), "bitwiseai.pid")
}

func isRunning(pidFile string) bool {
	if _, err := os.Stat(pidFile); os.IsNotExist(err) {
		return false
	}

	// Read PID and check if process exists
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return false
	}

	var pid int
	_, err = fmt.Sscanf(string(data), "%d", &pid)
	if err != nil {
		return false
	}

	// Check if process exists
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so we need to send signal 0
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
