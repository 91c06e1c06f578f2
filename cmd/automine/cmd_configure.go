package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/DannyDoesGraphics/auto-mine/pkg/bus"
	"github.com/DannyDoesGraphics/auto-mine/pkg/config"
	"github.com/DannyDoesGraphics/auto-mine/pkg/journal"
)

func (a *app) cmdConfigure(args []string) int {
	flags := flag.NewFlagSet("configure", flag.ContinueOnError)
	agent := flags.String("agent", "", "agent ID to publish as")
	force := flags.Bool("force", false, "overwrite the existing configuration")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	agentID, err := a.resolveAgent(*agent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "automine: %v\n", err)
		return 1
	}

	existing, err := a.store.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "automine: configure: %v\n", err)
		return 1
	}
	if existing != nil && !*force {
		fmt.Printf("configuration already set (config_version=%d); pass --force to overwrite\n", existing.ConfigVersion)
		return 2
	}

	wiz := config.NewWizard(os.Stdin, os.Stdout)
	cfg := wiz.Run()
	if existing != nil {
		cfg.ConfigVersion = existing.ConfigVersion + 1
	}

	j := journal.New(a.store)
	b := bus.New(a.store, j, a.quarryID, agentID, 200*time.Millisecond)
	b.RegisterVerifier()
	mgr := config.NewManager(a.store, b)
	if err := mgr.Publish(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "automine: configure: publish: %v\n", err)
		return 1
	}

	fmt.Printf("published configuration (config_version=%d)\n", cfg.ConfigVersion)
	return 0
}
