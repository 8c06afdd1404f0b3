package main

import (
	"os"

	"kickexpert-competition-service/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
