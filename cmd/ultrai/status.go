package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/artifact"
	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/orchestrator"
)

func statusCmd(args []string) {
	var runID string
	var runsDir = "runs"

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--run-id":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--run-id requires a value")
				os.Exit(1)
			}
			runID = args[i]
		case "--runs":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--runs requires a value")
				os.Exit(1)
			}
			runsDir = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			os.Exit(1)
		}
	}
	if runID == "" {
		usage()
		os.Exit(1)
	}

	store, err := artifact.NewStore(runsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var status orchestrator.StatusFile
	if err := store.Read(runID, orchestrator.ArtifactStatus, &status); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("run_id=%s\n", status.RunID)
	fmt.Printf("phase=%s\n", status.CurrentPhase)
	fmt.Printf("completed=%t\n", status.Completed)
	fmt.Printf("progress=%d%%\n", status.Progress)
	if status.Error != "" {
		fmt.Printf("error=%s\n", status.Error)
	}
	for _, step := range status.Steps {
		if step.Time != "" {
			fmt.Printf("  %-12s %s (%s)\n", step.Status, step.Text, step.Time)
		} else {
			fmt.Printf("  %-12s %s\n", step.Status, step.Text)
		}
	}

	if strings.HasPrefix(status.CurrentPhase, "FAILED") {
		os.Exit(1)
	}
	os.Exit(0)
}
