package main

import (
	"flag"
	"fmt"
	"os"
)

func (a *app) cmdInit(args []string) int {
	flags := flag.NewFlagSet("init", flag.ContinueOnError)
	agent := flags.String("agent", "", "agent ID to register (optional)")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	agents, err := a.store.ListAgents()
	if err != nil {
		fmt.Fprintf(os.Stderr, "automine: init: database error: %v\n", err)
		return 1
	}

	fmt.Printf("initialized quarry %q\n", a.quarryID)
	if len(agents) > 0 {
		fmt.Printf("  %d existing agent(s)\n", len(agents))
	}

	agentID := *agent
	if agentID == "" {
		agentID = a.agentID
	}
	if agentID != "" {
		ag, err := a.store.RegisterAgent(agentID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "automine: init: register: %v\n", err)
			return 1
		}
		fmt.Printf("  registered agent %q (config_version=%d)\n", ag.ID, ag.ConfigVersion)
	}

	fmt.Println()
	fmt.Println("next steps:")
	if agentID == "" {
		fmt.Println("  export AUTOMINE_AGENT=<your-id>")
	} else {
		fmt.Printf("  export AUTOMINE_AGENT=%s\n", agentID)
	}
	cfg, _ := a.store.LoadConfig()
	if cfg == nil {
		fmt.Println("  automine configure   # set the quarry configuration")
	}
	fmt.Println("  automine start       # begin the tick loop")

	return 0
}
