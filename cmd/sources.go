package cmd

import (
	"fmt"

	"github.com/audiolibrelab/recstore/internal/acquire"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available record sources",
	Long:  `List the record sources that can feed a recording and show the configured one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Record sources (configured: %s, %d channels @ %d Hz)\n\n",
			cfg.Acquire.Backend, cfg.Acquire.Channels, cfg.Acquire.SampleRate)

		for i, backend := range acquire.GetAvailableBackends() {
			marker := " "
			if string(backend) == cfg.Acquire.Backend {
				marker = "*"
			}
			fmt.Printf("%s %d. %s - %s\n", marker, i+1, backend, describeBackend(backend))
		}

		fmt.Printf("\nUsage:\n")
		fmt.Printf("  recstore record data.csv           one record per CSV row\n")
		fmt.Printf("  cat data.csv | recstore record     rows from stdin\n")
		fmt.Printf("  recstore record --source synthetic --count 1000\n")
		return nil
	},
}

func describeBackend(b acquire.BackendType) string {
	switch b {
	case acquire.BackendTypeCSV:
		return "comma separated values, one row per record"
	case acquire.BackendTypeSynthetic:
		return "sine wave per channel, one octave apart"
	default:
		return ""
	}
}
