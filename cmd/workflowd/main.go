package main

import (
	"os"

	"workflowd/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
