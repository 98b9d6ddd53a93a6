package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [name-or-csv-file]",
	Short: "Execute pipeline steps",
	Long: `Execute the pipeline steps given with -p.

When the pipeline starts with 'r' a new recording is made first (the argument,
if any, is the CSV input) and the remaining steps apply to it. Otherwise the
argument names an existing recording.

  recstore run -p rp data.csv      record data.csv, then play it back
  recstore run -p od 00042         offload 00042, then delete it`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if pipeline == "" {
			return fmt.Errorf("no pipeline specified, use -p flag (e.g., -p rp)")
		}

		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		if strings.HasPrefix(strings.ToLower(pipeline), "r") {
			session, err := recordSession(cmd, svc, args)
			if err != nil {
				return err
			}
			return executePipeline(svc, session.Name, 'r')
		}

		if len(args) != 1 {
			return fmt.Errorf("a recording name is required when the pipeline does not record")
		}

		name := args[0]
		for _, step := range strings.ToLower(pipeline) {
			if err := runStep(svc, step, name); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	addRecordFlags(runCmd)
}
