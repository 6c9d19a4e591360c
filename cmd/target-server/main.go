// Command target-server serves a simulated load-balanced fleet for
// local infraload runs.
package main

import (
	"os"

	"github.com/wesleyorama2/infraload/internal/cli"
)

func main() {
	if err := cli.ExecuteTarget(); err != nil {
		os.Exit(1)
	}
}
