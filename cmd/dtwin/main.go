package main

import (
	"github.com/joho/godotenv"

	"github.com/memvra/dtwin/internal/cli"
)

// version, commit, date are injected by the linker via -ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// A missing .env is fine; real environment variables still win.
	_ = godotenv.Load()
	cli.Execute(version, commit, date)
}
