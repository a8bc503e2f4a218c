package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Show the current status of the BitwiseAI daemon service.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pidFile := pidFilePath(cfg)

	if !isRunning(pidFile) {
		cmd.Println("Status: stopped")
		return nil
	}

	pid, err := readPID(pidFile)
	if err != nil {
		return err
	}

	// Get PID file modification time for uptime calculation
	fileInfo, err := os.Stat(pidFile)
	if err == nil {
		uptime := time.Since(fileInfo.ModTime())
		cmd.Printf("Status: running\n")
		cmd.Printf("PID: %d\n", pid)
		cmd.Printf("Uptime: %s\n", formatDuration(uptime))
	} else {
		cmd.Printf("Status: running\n")
		cmd.Printf("PID: %d\n", pid)
	}

	cmd.Printf("Workspace: %s\n", cfg.WorkspaceDir)

	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
