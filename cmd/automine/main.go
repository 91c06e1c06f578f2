// Command automine is the AutoMine CLI — coordination for a fleet of
// block-mining robots via a shared SQLite journal, tunnel plan, job
// queue, and heartbeat membership.
package main

import (
	"fmt"
	"os"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "--help", "-h", "help":
		printUsage()
		return
	case "--version", "-v", "version":
		fmt.Println("automine", version)
		return
	}

	a, err := newApp()
	if err != nil {
		fatal("%v", err)
	}
	defer a.Close()

	switch os.Args[1] {
	case "init":
		os.Exit(a.cmdInit(os.Args[2:]))
	case "configure":
		os.Exit(a.cmdConfigure(os.Args[2:]))
	case "start":
		os.Exit(a.cmdStart(os.Args[2:]))
	case "recall":
		os.Exit(a.cmdRecall(os.Args[2:]))
	case "status":
		os.Exit(a.cmdStatus(os.Args[2:]))
	case "watch":
		os.Exit(a.cmdWatch(os.Args[2:]))

	default:
		fmt.Fprintf(os.Stderr, "automine: unknown command %q\n", os.Args[1])
		fmt.Fprintln(os.Stderr, "Run 'automine --help' for usage.")
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`automine — coordination for a fleet of block-mining robots

Shared SQLite journal, tunnel plan, and priority job queue coordinate
agents digging a shared quarry under spatial and fuel constraints.

Usage:
  automine <command> [flags]

Commands:
  init                      Create the quarry database, register an agent
  configure                 Interactively set the quarry configuration
  start [--agent ID]        Run the tick loop for one agent until ctrl-c
  recall [--clear]          Set (or clear) the fleet-wide recall flag
  status                    Show agents, tunnels, queue, and recall state
  watch [--interval N]      Stream bus messages as they arrive

Environment:
  AUTOMINE_DB       SQLite database path (default: automine/<quarry>.db)
  AUTOMINE_QUARRY   Quarry ID (default: default)
  AUTOMINE_AGENT    Default agent ID (avoids passing --agent every time)

recall, status, and watch support --json for machine-readable output.
init, configure, start, status, and watch support --agent <id> to
override AUTOMINE_AGENT.

Exit codes:
  0  success
  1  error
  2  configuration already set (configure without --force)
`)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "automine: "+format+"\n", args...)
	os.Exit(1)
}
