package main

import (
	"os"

	"github.com/EmpoweredVote/EV-Globe/cmd/geoctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
