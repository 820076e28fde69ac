package main

import (
	"os"

	"github.com/agentkeep/convstate/cmd/convstate"
)

// Version is populated by build ldflags in CI/release builds. Default
// value is "dev" for local builds.
var Version = "dev"

func main() {
	convstate.SetVersion(Version)
	convstate.RunWithCommands(os.Args[1:])
}
