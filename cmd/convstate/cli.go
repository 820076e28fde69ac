package convstate

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"

	"github.com/agentkeep/convstate/internal/workspace"
)

// Run parses flags and executes the selected command.
func Run(args []string) {
	var first string
	if len(args) > 0 {
		first = args[0]
	}

	opts := &Options{}
	opts.Init(first)

	// Handle version early to avoid command requirement error from parser.
	if hasVersionFlag(args) {
		fmt.Println(Version())
		os.Exit(0)
	}

	// Print startup workspace to make it clear which workspace is in use.
	envWS := strings.TrimSpace(os.Getenv("CONVSTATE_WORKSPACE"))
	resolvedWS := workspace.Root()
	if envWS != "" {
		log.Printf("Starting convstate workspace with ${env.CONVSTATE_WORKSPACE}: %s", resolvedWS)
	} else {
		log.Printf("Starting convstate workspace with default workspace: %s, ${env.CONVSTATE_WORKSPACE} not set", resolvedWS)
	}

	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		log.Fatalf("%v", err)
	}

	if opts.Version {
		fmt.Println(Version())
		os.Exit(0)
	}
}

// hasVersionFlag returns true if args contain a global version flag.
func hasVersionFlag(args []string) bool {
	for _, a := range args {
		if a == "-v" || a == "--version" {
			return true
		}
	}
	return false
}

// RunWithCommands is kept for symmetry with the teacher's CLI entrypoint.
func RunWithCommands(args []string) {
	Run(args)
}
