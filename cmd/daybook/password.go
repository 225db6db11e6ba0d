package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest6511/daybook/pkg/audit"
)

var passwordRemoveForce bool

func init() {
	passwordRemoveCmd.Flags().BoolVarP(&passwordRemoveForce, "force", "f", false, "Skip confirmation prompt")

	passwordCmd.AddCommand(passwordSetCmd)
	passwordCmd.AddCommand(passwordChangeCmd)
	passwordCmd.AddCommand(passwordRemoveCmd)
	passwordCmd.AddCommand(passwordStrengthCmd)
}

// passwordCmd is the parent command for credential operations.
var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Manage the journal password",
}

// passwordSetCmd protects a journal that has no credential yet.
var passwordSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Sets a password on an unprotected journal",
	RunE: func(cmd *cobra.Command, args []string) error {
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
		fmt.Println("Password set. The journal will lock after inactivity.")
		return nil
	},
}

// passwordChangeCmd rotates the credential; requires the current one.
var passwordChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Changes the journal password",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		current, err := readPassword("Current password: ")
		if err != nil {
			return err
		}
		next, err := promptNewPassword()
		if err != nil {
			return err
		}

		if err := a.Lock.ChangeCredential(current, next); err != nil {
			return err
		}
		a.Audit.LogSuccess(audit.OpCredentialChange, audit.SourceCLI, "")
		fmt.Println("Password changed.")
		return nil
	},
}

// passwordRemoveCmd drops protection; requires the current credential.
var passwordRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Removes the journal password",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		if !passwordRemoveForce {
			confirm, err := promptLine("This leaves the journal unprotected. Continue? [y/N]: ")
			if err != nil {
				return err
			}
			if confirm != "y" && confirm != "Y" {
				fmt.Println("Cancelled.")
				return nil
			}
		}

		current, err := readPassword("Current password: ")
		if err != nil {
			return err
		}
		if err := a.Lock.RemoveCredential(current); err != nil {
			return err
		}
		a.Audit.LogSuccess(audit.OpCredentialRemove, audit.SourceCLI, "")
		fmt.Println("Password removed. Entries stay encrypted at rest.")
		return nil
	},
}

// passwordStrengthCmd scores a candidate without storing anything.
var passwordStrengthCmd = &cobra.Command{
	Use:   "strength",
	Short: "Scores a candidate password without saving it",
	RunE: func(cmd *cobra.Command, args []string) error {
		candidate, err := readPassword("Password to score: ")
		if err != nil {
			return err
		}

		result := a.Creds.ScoreStrength(candidate)
		fmt.Printf("Strength: %s (score %d/6)\n", result.Label, result.Score)

		validation := a.Creds.ValidatePassword(candidate)
		for _, problem := range validation.Errors {
			fmt.Printf("Warning: %s\n", problem)
		}
		return nil
	},
}

// promptNewPassword reads a new password twice and validates it.
func promptNewPassword() (string, error) {
	first, err := readPassword("New password: ")
	if err != nil {
		return "", err
	}
	second, err := readPassword("Confirm new password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("passwords do not match")
	}

	validation := a.Creds.ValidatePassword(first)
	if !validation.IsValid {
		return "", fmt.Errorf("password validation failed: %s", validation.Errors[0])
	}

	strength := a.Creds.ScoreStrength(first)
	fmt.Printf("Password strength: %s\n", strength.Label)
	return first, nil
}
