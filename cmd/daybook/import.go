package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/daybook/pkg/audit"
	"github.com/forest6511/daybook/pkg/importer"
)

var importSource string

func init() {
	importCmd.Flags().StringVar(&importSource, "source", "",
		fmt.Sprintf("Source format (%s)", strings.Join(importer.ValidSources(), ", ")))
	importCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(importCmd)
}

// importCmd brings entries in from another journal application's export.
var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Imports entries from another journal application",
	Long: `Imports entries from an export file produced by another journal
application. Supported sources:

  dayone   Day One JSON export
  csv      Generic CSV with date, title and content columns
           (mood and tags columns are optional; tags are
           semicolon-separated)

Imported entries are encrypted on write like any other entry.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		parser, err := importer.GetParser(importer.Source(importSource))
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read import file: %w", err)
		}

		result, err := parser.Parse(data)
		if err != nil {
			return err
		}

		imported := 0
		for _, entry := range result.Entries {
			if _, err := a.Store.Add(cmd.Context(), entry); err != nil {
				return fmt.Errorf("failed to import entry %q: %w", entry.Title, err)
			}
			imported++
		}

		a.Audit.LogSuccess(audit.OpEntryImport, audit.SourceCLI, "")

		fmt.Printf("Imported %d entries from %s\n", imported, args[0])
		for _, w := range result.Warnings {
			fmt.Printf("Warning: %s\n", w)
		}
		for _, s := range result.Skipped {
			fmt.Printf("Skipped %s: %s\n", s.Identifier, s.Reason)
		}
		flushSync(cmd.Context())
		return nil
	},
}
