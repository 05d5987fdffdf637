// Command aptrepo manages a Debian/Ubuntu-style APT repository on the
// local filesystem: create, add, remove, update and sign.
package main

import (
	"fmt"
	"os"

	"github.com/archflux/aptrepo/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
