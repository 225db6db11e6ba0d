package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/daybook/pkg/audit"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

// initCmd creates the journal directory and key material. Opening any
// command creates the directory too; init exists to do it deliberately
// and to offer password protection up front.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initializes a journal directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := a.Cipher.GetOrCreateKey(); err != nil {
			return fmt.Errorf("failed to create journal key: %w", err)
		}
		fmt.Printf("Journal initialized at %s\n", a.Path)

		if a.Lock.Snapshot().HasCredential {
			return nil
		}

		answer, err := promptLine("Set a password now? [y/N]: ")
		if err != nil {
			return err
		}
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("No password set. Run 'daybook password set' to add one.")
			return nil
		}

		password, err := promptNewPassword()
		if err != nil {
			return err
		}
		if err := a.Lock.SetCredential(password); err != nil {
			return err
		}
		if err := a.ArmAudit(); err != nil {
			return err
		}
		a.Audit.LogSuccess(audit.OpCredentialSet, audit.SourceCLI, "")
		fmt.Println("Password set.")
		return nil
	},
}
