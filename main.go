package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/lakeops/csv-shuttle/cmd"
)

var (
	errorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FF0000")).
		Bold(true)
)

// stopFilePath is an out-of-band cancellation channel for terminals
// that swallow CTRL-C.
func stopFilePath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".csv-shuttle", "stop")
}

func main() {
	// Register signals before Cobra or any library can interfere
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopFile := stopFilePath()
	_ = os.Remove(stopFile)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := os.Stat(stopFile); err == nil {
					_ = os.Remove(stopFile)
					cancel()
					return
				}
			}
		}
	}()

	cmd.SetSignalContext(ctx, stopFile)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("❌ Error: "+err.Error()))
		os.Exit(1)
	}
}
