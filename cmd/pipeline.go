package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/audiolibrelab/recstore/internal/play"
	"github.com/audiolibrelab/recstore/internal/service"
)

// executePipeline runs the pipeline steps that follow startStep on the named
// recording
func executePipeline(svc service.Service, name string, startStep rune) error {
	if pipeline == "" {
		return nil
	}

	steps := []rune(strings.ToLower(pipeline))

	// Find the starting position in the pipeline
	startIndex := -1
	for i, step := range steps {
		if step == startStep {
			startIndex = i
			break
		}
	}

	if startIndex == -1 {
		return fmt.Errorf("step '%c' not found in pipeline '%s'", startStep, pipeline)
	}

	for _, step := range steps[startIndex+1:] {
		if err := runStep(svc, step, name); err != nil {
			return err
		}
	}
	return nil
}

// runStep executes one non-recording pipeline step
func runStep(svc service.Service, step rune, name string) error {
	fmt.Fprintf(os.Stderr, "Pipeline: executing step '%c' on %s...\n", step, name)

	switch step {
	case 'p':
		if _, err := svc.Play(name, os.Stdout, play.FormatCSV); err != nil {
			return fmt.Errorf("pipeline play failed: %w", err)
		}
	case 'o':
		res, err := svc.Offload(context.Background(), name)
		if err != nil {
			return fmt.Errorf("pipeline offload failed: %w", err)
		}
		printOffload(*res)
	case 'd':
		if err := svc.RemoveRecording(name); err != nil {
			return fmt.Errorf("pipeline delete failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown pipeline step: '%c' (valid: r=record, p=play, o=offload, d=delete)", step)
	}
	return nil
}

func validatePipeline() error {
	if pipeline == "" {
		return nil
	}

	steps := strings.ToLower(pipeline)
	if strings.Count(steps, "r") > 1 || strings.Count(steps, "d") > 1 {
		return fmt.Errorf("record and delete may appear at most once in pipeline '%s'", pipeline)
	}

	for i, step := range steps {
		if !strings.ContainsRune("rpod", step) {
			return fmt.Errorf("invalid pipeline step '%c' (valid: r=record, p=play, o=offload, d=delete)", step)
		}
		if step == 'r' && i != 0 {
			return fmt.Errorf("record step must come first in pipeline '%s'", pipeline)
		}
		if step == 'd' && i != len(steps)-1 {
			return fmt.Errorf("delete step must come last in pipeline '%s'", pipeline)
		}
	}

	return nil
}
