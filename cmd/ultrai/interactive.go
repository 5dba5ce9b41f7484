package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/cocktail"
)

// promptInteractive collects the query and cocktail from the terminal.
// preset, when non-empty, skips the cocktail menu.
func promptInteractive(catalog *cocktail.Catalog, preset string) (query, cocktailName string, err error) {
	rl, err := readline.New("QUERY> ")
	if err != nil {
		return "", "", err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			return "", "", fmt.Errorf("aborted")
		}
		if err != nil {
			return "", "", err
		}
		if strings.TrimSpace(line) != "" {
			query = line
			break
		}
		fmt.Println("enter a non-empty query")
	}

	if preset != "" {
		if _, ok := catalog.Get(preset); !ok {
			return "", "", fmt.Errorf("unknown cocktail %q (have: %s)", preset, strings.Join(catalog.Names(), ", "))
		}
		return query, preset, nil
	}

	names := catalog.Names()
	fmt.Println("cocktails:")
	for i, name := range names {
		r, _ := catalog.Get(name)
		fmt.Printf("  %d. %-8s %s\n", i+1, name, strings.Join(r.Primaries, ", "))
	}

	rl.SetPrompt("COCKTAIL [SPEEDY]> ")
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			return "", "", fmt.Errorf("aborted")
		}
		if err != nil {
			return "", "", err
		}
		choice := strings.TrimSpace(line)
		if choice == "" {
			return query, "SPEEDY", nil
		}
		if n, convErr := strconv.Atoi(choice); convErr == nil {
			if n >= 1 && n <= len(names) {
				return query, names[n-1], nil
			}
			fmt.Printf("pick 1-%d\n", len(names))
			continue
		}
		if _, ok := catalog.Get(choice); ok {
			return query, strings.ToUpper(choice), nil
		}
		fmt.Printf("unknown cocktail %q\n", choice)
	}
}
