package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	auditLimit int
	auditSince string
)

func init() {
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)

	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to show")
	auditListCmd.Flags().StringVar(&auditSince, "since", "", "Show events since duration (e.g., 24h)")
}

// auditCmd is the parent command for audit operations.
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
}

// auditListCmd lists audit log entries.
var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists audit log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		var since time.Time
		if auditSince != "" {
			d, err := time.ParseDuration(auditSince)
			if err != nil {
				return fmt.Errorf("invalid --since duration: %w", err)
			}
			since = time.Now().Add(-d)
		}

		events, err := a.Audit.ListEvents(auditLimit, since)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No audit events.")
			return nil
		}
		for _, e := range events {
			line := fmt.Sprintf("%s  %-24s %s", e.Timestamp, e.Operation, e.Result)
			if e.EntryID != "" {
				line += "  " + e.EntryID
			}
			fmt.Println(line)
		}
		return nil
	},
}

// auditVerifyCmd checks the HMAC chain.
var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verifies the audit log chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		result, err := a.Audit.Verify()
		if err != nil {
			return err
		}
		if result.Valid {
			fmt.Printf("Chain intact: %d record(s) verified\n", result.RecordsVerified)
			return nil
		}
		fmt.Printf("Chain INVALID: %d record(s) checked\n", result.RecordsTotal)
		for _, problem := range result.Errors {
			fmt.Println("  " + problem)
		}
		return fmt.Errorf("audit chain verification failed")
	},
}
