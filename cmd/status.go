package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the store state and the resolved medium",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		if clearErr, _ := cmd.Flags().GetBool("clear"); clearErr {
			if err := svc.ClearError(); err != nil {
				return fmt.Errorf("failed to clear error: %w", err)
			}
		}

		status := svc.GetStatus()

		fmt.Printf("=== STORE ===\n")
		fmt.Printf("state: %s\n", status.State)
		fmt.Printf("error: %s\n", status.ErrorCode)
		fmt.Printf("next_index: %d\n", status.NextIndex)
		if status.Message != "" {
			fmt.Printf("message: %s\n", status.Message)
		}

		fmt.Printf("\n=== MEDIUM ===\n")
		fmt.Printf("profile: %s\n", cfg.Profile)
		fmt.Printf("backend: %s\n", cfg.Medium.Backend)
		if cfg.Medium.Root != "" {
			fmt.Printf("root: %s\n", cfg.Medium.Root)
		}

		fmt.Printf("\n=== OFFLOAD ===\n")
		if cfg.Offload.Bucket == "" {
			fmt.Printf("bucket: (not configured)\n")
		} else {
			fmt.Printf("bucket: %s\n", cfg.Offload.Bucket)
			fmt.Printf("key_prefix: %s/%s/\n", cfg.Offload.Prefix, cfg.Offload.DeviceID)
			fmt.Printf("remove_after_upload: %t\n", cfg.Offload.RemoveAfterUpload)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("clear", false, "re-initialize the medium when the store is in error state")
}
