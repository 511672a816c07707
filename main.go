package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"github.com/rand/pips/internal/cmd"
)

func main() {
	// Best effort; a missing .env is not an error.
	_ = godotenv.Load()

	if err := cmd.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
