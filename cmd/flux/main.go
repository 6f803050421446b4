// Command flux estimates the flux of vector fields through parametric
// surfaces.
//
// Run: go run ./cmd/flux --help
package main

import (
	"fmt"
	"os"

	"github.com/njchilds90/goflux/internal/cli"
)

func main() {
	if err := cli.Root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
