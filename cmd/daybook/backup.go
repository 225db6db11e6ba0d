package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forest6511/daybook/pkg/audit"
	"github.com/forest6511/daybook/pkg/backup"
)

var backupOutput string

func init() {
	backupCmd.Flags().StringVarP(&backupOutput, "output", "o", "", "Output file path (default: stdout)")
}

// backupCmd exports the whole journal as a plaintext bundle.
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Exports the journal as a portable bundle",
	Long: `Exports every entry as a checksummed JSON bundle.

The bundle is NOT encrypted: anyone holding the file can read the
journal. Store it somewhere you trust.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		engine := backup.NewEngine(a.Store)
		opts := backup.ExportOptions{Path: backupOutput}
		if backupOutput == "" {
			opts.Output = os.Stdout
		}

		if err := engine.Export(cmd.Context(), opts); err != nil {
			return err
		}

		a.Audit.LogSuccess(audit.OpBackupExport, audit.SourceCLI, "")
		if backupOutput != "" {
			fmt.Fprintf(os.Stderr, "Bundle written to %s\n", backupOutput)
		}
		return nil
	},
}
