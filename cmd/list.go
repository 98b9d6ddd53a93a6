package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recordings on the card",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		recordings, err := svc.ListRecordings()
		if err != nil {
			return fmt.Errorf("failed to list recordings: %w", err)
		}

		if len(recordings) == 0 {
			fmt.Println("No recordings found")
			return nil
		}

		var total uint64
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSIZE\tBYTES")
		for _, r := range recordings {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", r.Name, r.SizeHuman, r.Size)
			total += uint64(r.Size)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		fmt.Printf("\n%s in %s\n", humanize.Bytes(total), pluralize(len(recordings), "recording"))
		return nil
	},
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%s %ss", humanize.Comma(int64(n)), noun)
}
