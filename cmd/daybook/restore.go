package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest6511/daybook/pkg/audit"
	"github.com/forest6511/daybook/pkg/backup"
)

var (
	restoreMode       string
	restoreDryRun     bool
	restoreVerifyOnly bool
	restoreForce      bool
)

func init() {
	restoreCmd.Flags().StringVar(&restoreMode, "mode", "merge", "Restore mode: merge or replace")
	restoreCmd.Flags().BoolVar(&restoreDryRun, "dry-run", false, "Preview the restore without changing the journal")
	restoreCmd.Flags().BoolVar(&restoreVerifyOnly, "verify-only", false, "Only check bundle integrity")
	restoreCmd.Flags().BoolVarP(&restoreForce, "force", "f", false, "Skip confirmation prompt")
}

// replaceNeedsConfirmation reports whether the invocation risks data
// loss and must prompt. Merge never destroys local entries; dry-run and
// verify-only never write.
func replaceNeedsConfirmation(mode backup.RestoreMode, force, dryRun, verifyOnly bool) bool {
	return mode == backup.ModeReplace && !force && !dryRun && !verifyOnly
}

// restoreCmd applies a bundle to the journal.
var restoreCmd = &cobra.Command{
	Use:   "restore [bundle-file]",
	Short: "Restores entries from a bundle",
	Long: `Restores entries from a bundle file.

merge keeps both sets; when the same entry exists on both sides, the
most recently modified copy wins. replace discards the local journal
and adopts the bundle. A bundle that fails validation changes nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		var mode backup.RestoreMode
		switch restoreMode {
		case "merge":
			mode = backup.ModeMerge
		case "replace":
			mode = backup.ModeReplace
		default:
			return fmt.Errorf("invalid mode %q: use merge or replace", restoreMode)
		}

		// Replace discards every local entry; make the caller say so.
		if replaceNeedsConfirmation(mode, restoreForce, restoreDryRun, restoreVerifyOnly) {
			confirm, err := promptLine("This will REPLACE the whole journal with the bundle. Continue? [y/N]: ")
			if err != nil {
				return err
			}
			if confirm != "y" && confirm != "Y" {
				fmt.Println("Restore cancelled.")
				return nil
			}
		}

		engine := backup.NewEngine(a.Store)
		result, err := engine.RestoreFile(cmd.Context(), args[0], backup.RestoreOptions{
			Mode:       mode,
			DryRun:     restoreDryRun,
			VerifyOnly: restoreVerifyOnly,
		})
		if err != nil {
			return err
		}

		if restoreVerifyOnly {
			fmt.Println("Bundle is valid.")
			return nil
		}
		if result.DryRun {
			fmt.Printf("Would restore %d entr(ies), keep %d local, %d total\n",
				result.EntriesRestored, result.EntriesKept, result.TotalEntries)
			return nil
		}

		a.Audit.LogSuccess(audit.OpBackupRestore, audit.SourceCLI, "")
		fmt.Printf("Restored %d entr(ies), kept %d local, %d total\n",
			result.EntriesRestored, result.EntriesKept, result.TotalEntries)
		return nil
	},
}
