package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/orchestrator"
)

func runCmd(args []string) {
	var query string
	var cocktailName string
	var runsDir = "runs"
	var cocktailsPath string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--query":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--query requires a value")
				os.Exit(1)
			}
			query = args[i]
		case "--cocktail":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--cocktail requires a value")
				os.Exit(1)
			}
			cocktailName = args[i]
		case "--runs":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--runs requires a value")
				os.Exit(1)
			}
			runsDir = args[i]
		case "--cocktails":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--cocktails requires a value")
				os.Exit(1)
			}
			cocktailsPath = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			os.Exit(1)
		}
	}

	coord, err := buildCoordinator(runsDir, cocktailsPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// No --query means interactive mode: prompt for the query and cocktail.
	if query == "" {
		query, cocktailName, err = promptInteractive(coord.Catalog(), cocktailName)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if cocktailName == "" {
		cocktailName = "SPEEDY"
	}

	runID := coord.NewRunID()
	run, err := coord.Prepare(runID)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("run_id=%s\n", runID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "interrupted, cancelling run...")
		cancel()
	}()

	stopFollow := followProgress(coord, runID)
	execErr := coord.Execute(ctx, run, orchestrator.RunRequest{
		Query:    query,
		Cocktail: cocktailName,
	})
	stopFollow()

	if execErr != nil {
		fmt.Fprintln(os.Stderr, execErr)
		os.Exit(1)
	}

	var final orchestrator.FinalArtifact
	if err := coord.Store().Read(runID, orchestrator.ArtifactFinal, &final); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println()
	fmt.Println(final.Text)
	fmt.Println()

	var delivery orchestrator.DeliveryArtifact
	if err := coord.Store().Read(runID, orchestrator.ArtifactDelivery, &delivery); err == nil {
		fmt.Printf("delivery=%s artifacts=%d\n", delivery.Status, delivery.Metadata.TotalArtifacts)
	}

	var status orchestrator.StatusFile
	if err := coord.Store().Read(runID, orchestrator.ArtifactStatus, &status); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if status.CurrentPhase != orchestrator.PhaseDelivered {
		os.Exit(1)
	}
	os.Exit(0)
}

// followProgress polls status.json and prints each step as it finishes.
// Returns a stop function that drains one final snapshot before returning.
func followProgress(coord *orchestrator.Coordinator, runID string) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		reported := make(map[string]string)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				printNewSteps(coord, runID, reported)
				return
			case <-ticker.C:
				printNewSteps(coord, runID, reported)
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

func printNewSteps(coord *orchestrator.Coordinator, runID string, reported map[string]string) {
	var status orchestrator.StatusFile
	if err := coord.Store().Read(runID, orchestrator.ArtifactStatus, &status); err != nil {
		return
	}
	for _, step := range status.Steps {
		if step.Status != orchestrator.StepCompleted && step.Status != orchestrator.StepFailed {
			continue
		}
		if reported[step.Text] == step.Status {
			continue
		}
		reported[step.Text] = step.Status
		mark := "done"
		if step.Status == orchestrator.StepFailed {
			mark = "FAIL"
		}
		if step.Time != "" {
			fmt.Printf("  %s  %s (%s)\n", mark, step.Text, step.Time)
		} else {
			fmt.Printf("  %s  %s\n", mark, step.Text)
		}
	}
}
