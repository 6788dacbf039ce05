package main

import (
	"log"
	"os"

	"github.com/cwbudde/ssimulacra2"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Printf("Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps scoring errors to the magnitude of their ErrorKind so
// scripts can tell a size mismatch from a missing file. Anything else exits
// with 1.
func exitCode(err error) int {
	switch kind := ssimulacra2.KindOf(err); kind {
	case ssimulacra2.OK, ssimulacra2.Unknown:
		return 1
	default:
		return -int(kind)
	}
}
