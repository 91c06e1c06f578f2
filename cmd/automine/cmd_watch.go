package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func (a *app) cmdWatch(args []string) int {
	flags := flag.NewFlagSet("watch", flag.ContinueOnError)
	agent := flags.String("agent", "", "agent ID")
	interval := flags.Int("interval", 1, "poll interval in seconds")
	jsonOut := flags.Bool("json", false, "JSON output (one JSON object per line)")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	agentID, err := a.resolveAgent(*agent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "automine: %v\n", err)
		return 1
	}

	cursor := a.store.GetCursor(agentID)
	pollInterval := time.Duration(*interval) * time.Second

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	fmt.Fprintf(os.Stderr, "watching bus messages for %s (poll every %s, ctrl-c to stop)\n", agentID, pollInterval)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sig:
			fmt.Fprintln(os.Stderr, "\nstopped")
			return 0
		case <-ticker.C:
			msgs, err := a.store.ListMessagesForAgent(a.quarryID, agentID, cursor, 100)
			if err != nil {
				fmt.Fprintf(os.Stderr, "automine: watch: %v\n", err)
				continue
			}
			for _, m := range msgs {
				if *jsonOut {
					b, _ := json.Marshal(m)
					fmt.Println(string(b))
				} else {
					fmt.Printf("[seq=%d] %s %s -> %s: %s\n", m.Seq, m.Sender, m.Kind, m.Target, m.Body)
				}
				if m.ID > cursor {
					cursor = m.ID
				}
			}
			if len(msgs) > 0 {
				_ = a.store.SetCursor(agentID, cursor)
			}
		}
	}
}
