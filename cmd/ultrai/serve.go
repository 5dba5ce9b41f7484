package main

import (
	"fmt"
	"os"

	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/server"
)

func serveCmd(args []string) {
	var addr = ":8080"
	var runsDir = "runs"
	var cocktailsPath string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--addr":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--addr requires a value")
				os.Exit(1)
			}
			addr = args[i]
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

	srv := server.New(server.Config{Addr: addr}, coord)
	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
