package main

import (
	"flag"
	"fmt"
	"os"
)

func (a *app) cmdRecall(args []string) int {
	flags := flag.NewFlagSet("recall", flag.ContinueOnError)
	clear := flags.Bool("clear", false, "clear the recall flag instead of setting it")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	active := !*clear
	if err := a.store.SetRecall(active); err != nil {
		fmt.Fprintf(os.Stderr, "automine: recall: %v\n", err)
		return 1
	}

	if *jsonOut {
		printJSON(map[string]interface{}{"active": active})
		return 0
	}
	if active {
		fmt.Println("recall set: agents will deposit, return to spawn, and wait")
	} else {
		fmt.Println("recall cleared: agents will resume normal work")
	}
	return 0
}
