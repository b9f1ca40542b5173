package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/grimoire-rpg/grimoire/cmd/grimoire/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// A missing .env is fine; the environment and grimoire.yml still apply.
	godotenv.Load()

	commands.SetVersionInfo(version, commit, date)

	// Errors are printed by the printer package with color formatting.
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
