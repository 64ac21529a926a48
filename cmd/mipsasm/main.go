// Command mipsasm is a command-line driver for the mipsasm assembler:
// it runs command files given on the command line, then drops into an
// interactive prompt reading further commands from stdin.
package main

import (
	"fmt"
	"os"

	"github.com/mipsasm/mipsasm/host"
)

func main() {
	h := host.New()

	args := os.Args[1:]
	for _, filename := range args {
		file, err := os.Open(filename)
		if err != nil {
			exitOnError(err)
		}
		h.RunCommands(file, os.Stdout, false)
		file.Close()
	}

	h.RunCommands(os.Stdin, os.Stdout, true)
}

func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
