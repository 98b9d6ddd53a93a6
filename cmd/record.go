package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/recstore/internal/acquire"
	"github.com/audiolibrelab/recstore/internal/service"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record [csv-file]",
	Short: "Record a new recording",
	Long: `Create the next numbered recording and fill it from a record source.

The csv source reads one record per row from the given file, or from stdin
when no file (or '-') is given. The synthetic source generates a sine wave
per channel. Press Ctrl+C to stop early; records written so far are kept.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		session, err := recordSession(cmd, svc, args)
		if err != nil {
			return err
		}

		return executePipeline(svc, session.Name, 'r')
	},
}

// recordSession runs one foreground recording session and reports it
func recordSession(cmd *cobra.Command, svc service.Service, args []string) (*service.RecordingSession, error) {
	src, closeInput, err := openSource(cmd, args)
	if err != nil {
		return nil, err
	}
	defer closeInput()

	var interval time.Duration
	if pace, _ := cmd.Flags().GetBool("pace"); pace {
		interval = time.Second / time.Duration(cfg.Acquire.SampleRate)
	}

	// Handle interruption
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Recording... Press Ctrl+C to stop")
	session, err := svc.Record(ctx, src, interval)
	if session != nil {
		fmt.Printf("Recorded %s: %d records in %s\n", session.Name, session.Records,
			session.EndTime.Sub(session.StartTime).Round(time.Millisecond))
	}
	if err != nil {
		return session, fmt.Errorf("recording failed: %w", err)
	}
	return session, nil
}

// openSource builds the record source from flags and configuration
func openSource(cmd *cobra.Command, args []string) (acquire.Source, func(), error) {
	acq := cfg.Acquire
	if backend, _ := cmd.Flags().GetString("source"); backend != "" {
		acq.Backend = backend
	}
	count, _ := cmd.Flags().GetInt("count")

	opts := acquire.Options{Count: count}
	closeInput := func() {}

	if acq.Backend != string(acquire.BackendTypeSynthetic) {
		var input io.Reader = os.Stdin
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return nil, nil, fmt.Errorf("failed to open input: %w", err)
			}
			input = f
			closeInput = func() { f.Close() }
		}
		opts.Input = input
	}

	src, err := acquire.NewSource(acq, opts)
	if err != nil {
		closeInput()
		return nil, nil, err
	}
	return src, closeInput, nil
}

func addRecordFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", "", "record source: csv or synthetic (overrides config)")
	cmd.Flags().Int("count", 0, "number of synthetic records (0 records until Ctrl+C)")
	cmd.Flags().Bool("pace", false, "write records at the configured sample rate")
}

func init() {
	addRecordFlags(recordCmd)
}
