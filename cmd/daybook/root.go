package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/forest6511/daybook/internal/app"
	"github.com/forest6511/daybook/pkg/audit"
)

var (
	journalPath string
	a           *app.App
)

var rootCmd = &cobra.Command{
	Use:   "daybook",
	Short: "daybook is a local-first encrypted journal",
	Long:  `An encrypted journal that lives on your machine and syncs when it can.`,
	// PersistentPreRunE wires the service graph before any subcommand.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		a, err = app.Open(cmd.Context(), journalPath)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if a != nil {
			return a.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&journalPath, "path", "", "Journal directory (default: ~/.daybook)")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(passwordCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(auditCmd)
}

// flushSync pushes queued changes right after a local mutation. Best
// effort with a bounded wait; anything that does not make it stays
// queued for the next pass.
func flushSync(ctx context.Context) {
	if a.Queue == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := a.Queue.ProcessQueue(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: sync failed, changes stay queued: %v\n", err)
	}
}

// promptLine reads one echoed line from stdin.
func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readPassword prompts without echoing.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(passwordBytes), nil
}

// ensureUnlocked prompts for the password when a credential is set.
func ensureUnlocked() error {
	if a.Lock.Unlocked() {
		return a.ArmAudit()
	}
	password, err := readPassword("Enter password: ")
	if err != nil {
		return err
	}
	if err := a.Unlock(password); err != nil {
		return fmt.Errorf("failed to unlock journal: %w", err)
	}
	a.Audit.LogSuccess(audit.OpUnlock, audit.SourceCLI, "")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
