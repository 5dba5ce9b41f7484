package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/artifact"
	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/cocktail"
	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/gateway"
	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/orchestrator"
)

func main() {
	// .env is optional; real deployments set the variables directly.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runCmd(os.Args[2:])
	case "serve":
		serveCmd(os.Args[2:])
	case "status":
		statusCmd(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  ultrai run [--query <text>] [--cocktail <name>] [--runs <dir>] [--cocktails <file.yaml>]")
	fmt.Fprintln(os.Stderr, "  ultrai serve [--addr <host:port>] [--runs <dir>] [--cocktails <file.yaml>]")
	fmt.Fprintln(os.Stderr, "  ultrai status --run-id <id> [--runs <dir>]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "environment:")
	fmt.Fprintln(os.Stderr, "  OPENROUTER_API_KEY   (required) OpenRouter API key")
	fmt.Fprintln(os.Stderr, "  OPENROUTER_BASE_URL  override the OpenRouter base URL")
	fmt.Fprintln(os.Stderr, "  YOUR_SITE_URL        HTTP-Referer attribution header")
	fmt.Fprintln(os.Stderr, "  YOUR_SITE_NAME       X-Title attribution header")
}

// loadCatalog returns the built-in rosters, or the user's file when given.
func loadCatalog(path string) (*cocktail.Catalog, error) {
	if path == "" {
		return cocktail.Default(), nil
	}
	return cocktail.LoadFile(path)
}

// buildCoordinator wires the gateway, store, and catalog for run/serve.
func buildCoordinator(runsDir, cocktailsPath string) (*orchestrator.Coordinator, error) {
	gw, err := gateway.NewClientFromEnv()
	if err != nil {
		return nil, err
	}
	store, err := artifact.NewStore(runsDir)
	if err != nil {
		return nil, err
	}
	catalog, err := loadCatalog(cocktailsPath)
	if err != nil {
		return nil, err
	}
	return orchestrator.NewCoordinator(orchestrator.Options{
		Gateway: gw,
		Store:   store,
		Catalog: catalog,
	})
}
