package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	syncCmd.AddCommand(syncNowCmd)
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncRetryCmd)
}

// syncCmd is the parent command for queue operations.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Manage the outbound sync queue",
}

// syncNowCmd runs one queue pass.
var syncNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Pushes pending changes to the remote",
	RunE: func(cmd *cobra.Command, args []string) error {
		if a.Queue == nil {
			return fmt.Errorf("sync is not configured: set sync.remote in config.yaml")
		}

		result, err := a.Queue.ProcessQueue(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Processed %d item(s), %d failed\n", result.Processed, result.Failed)
		return nil
	},
}

// syncStatusCmd reports queue depth and parked items.
var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows queue depth and items out of retries",
	RunE: func(cmd *cobra.Command, args []string) error {
		if a.Queue == nil {
			fmt.Println("Sync is not configured. Entries stay local.")
			return nil
		}

		pending, err := a.Queue.PendingCount(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Pending: %d item(s)\n", pending)

		parked, err := a.Queue.ParkedItems(cmd.Context())
		if err != nil {
			return err
		}
		if len(parked) == 0 {
			return nil
		}
		fmt.Printf("Out of retries (%d):\n", len(parked))
		for _, item := range parked {
			fmt.Printf("  %s  %s %s  last error: %s\n", item.ID, item.Type, item.EntryID, item.LastError)
		}
		fmt.Println("Run 'daybook sync retry <item-id>' to retry one.")
		return nil
	},
}

// syncRetryCmd gives a parked item a fresh retry budget.
var syncRetryCmd = &cobra.Command{
	Use:   "retry [item-id]",
	Short: "Retries an item that ran out of attempts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if a.Queue == nil {
			return fmt.Errorf("sync is not configured: set sync.remote in config.yaml")
		}

		if err := a.Queue.RetryParked(cmd.Context(), args[0]); err != nil {
			return err
		}
		result, err := a.Queue.ProcessQueue(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Retried: %d processed, %d failed\n", result.Processed, result.Failed)
		return nil
	},
}
