package main

import (
	"os"

	"netdiag-orchestrator/cmd/devtool/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
