package main

import (
	"fmt"
	"os"

	"github.com/socialdev-club/soticle/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "soticle: %v\n", err)
		os.Exit(1)
	}
}
