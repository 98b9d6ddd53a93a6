package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/recstore/internal/offload"
	"github.com/dustin/go-humanize"

	"github.com/spf13/cobra"
)

var offloadCmd = &cobra.Command{
	Use:   "offload [name...]",
	Short: "Upload recordings to S3-compatible storage",
	Long: `Upload recordings to the bucket configured in the offload section.
Objects are stored as <prefix>/<device_id>/<name>.rec in the card format.
With remove_after_upload set, each recording is removed once uploaded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if all == (len(args) > 0) {
			return fmt.Errorf("give recording names or --all")
		}

		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if all {
			results, err := svc.OffloadAll(ctx)
			for _, res := range results {
				printOffload(res)
			}
			if err != nil {
				return fmt.Errorf("offload stopped after %d recordings: %w", len(results), err)
			}
			fmt.Printf("Offloaded %d recordings\n", len(results))
			return nil
		}

		for _, name := range args {
			res, err := svc.Offload(ctx, name)
			if err != nil {
				return fmt.Errorf("failed to offload %s: %w", name, err)
			}
			printOffload(*res)
		}
		return nil
	},
}

func printOffload(res offload.Result) {
	fmt.Printf("%s -> s3://%s/%s (%d records, %s)\n",
		res.Name, cfg.Offload.Bucket, res.Key, res.Records, humanize.Bytes(uint64(res.Bytes)))
}

func init() {
	offloadCmd.Flags().Bool("all", false, "offload every recording on the card")
}
