package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// statusCmd reports lock state and sync health at a glance.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows journal lock and sync state",
	RunE: func(cmd *cobra.Command, args []string) error {
		state := a.Lock.Snapshot()

		fmt.Printf("Journal:  %s\n", a.Path)
		fmt.Printf("Phase:    %s\n", state.Phase)
		if state.HasCredential {
			fmt.Println("Password: set")
		} else {
			fmt.Println("Password: not set")
		}
		if state.Biometric.Available {
			fmt.Printf("Biometrics: available (enabled: %t)\n", state.Biometric.Enabled)
		}

		if a.Queue == nil {
			fmt.Println("Sync:     not configured")
			return nil
		}
		pending, err := a.Queue.PendingCount(cmd.Context())
		if err != nil {
			return err
		}
		parked, err := a.Queue.ParkedItems(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Sync:     %s, %d pending, %d out of retries\n",
			a.Config.Sync.Remote, pending, len(parked))
		return nil
	},
}
