package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/audiolibrelab/recstore/internal/play"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [name]",
	Short: "Play a recording back as CSV or JSON lines",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		formatName, _ := cmd.Flags().GetString("format")
		format, err := play.ParseFormat(formatName)
		if err != nil {
			return err
		}

		var out io.Writer = os.Stdout
		if path, _ := cmd.Flags().GetString("output"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create output: %w", err)
			}
			defer f.Close()
			out = f
		}

		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		n, err := svc.Play(name, out, format)
		if err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}

		slog.Info("Playback completed", "name", name, "records", n)
		return nil
	},
}

func init() {
	playCmd.Flags().StringP("format", "f", "csv", "output format: csv or jsonl")
	playCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
}
