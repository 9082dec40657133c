// The main package for the officer-crawler executable.
package main

import (
	"github.com/joho/godotenv"

	"github.com/JakeFAU/officer-crawler/cmd"
)

func main() {
	// OFFICERS_* variables may come from a local .env file; a missing file is fine.
	_ = godotenv.Load()
	cmd.Execute()
}
