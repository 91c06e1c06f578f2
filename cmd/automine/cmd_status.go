package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
)

func (a *app) cmdStatus(args []string) int {
	flags := flag.NewFlagSet("status", flag.ContinueOnError)
	agent := flags.String("agent", "", "agent ID (optional, shows focused view)")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	agentID, _ := a.resolveAgent(*agent)

	cfg, err := a.store.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "automine: status: %v\n", err)
		return 1
	}
	heartbeatTimeout := 8 * time.Second
	if cfg != nil {
		heartbeatTimeout = time.Duration(cfg.HeartbeatTimeout) * time.Millisecond
	}

	agents, err := a.store.ListAgents()
	if err != nil {
		fmt.Fprintf(os.Stderr, "automine: status: %v\n", err)
		return 1
	}
	live, err := a.store.ListLiveAgents(heartbeatTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "automine: status: %v\n", err)
		return 1
	}
	leader := electLeader(live)

	tunnels, err := a.store.ListTunnels()
	if err != nil {
		fmt.Fprintf(os.Stderr, "automine: status: %v\n", err)
		return 1
	}
	queued, err := a.store.LoadJobLedger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "automine: status: %v\n", err)
		return 1
	}
	recallActive, err := a.store.GetRecall()
	if err != nil {
		fmt.Fprintf(os.Stderr, "automine: status: %v\n", err)
		return 1
	}

	if *jsonOut {
		result := map[string]interface{}{
			"quarry":        a.quarryID,
			"config":        cfg,
			"agents":        agents,
			"leader":        leader,
			"tunnels":       tunnels,
			"job_ledger":    queued,
			"recall_active": recallActive,
		}
		printJSON(result)
		return 0
	}

	fmt.Printf("quarry %q\n", a.quarryID)
	if cfg == nil {
		fmt.Println("configuration: not set (run 'automine configure')")
	} else {
		fmt.Printf("configuration: version=%d bbox=(%d,%d,%d)\n", cfg.ConfigVersion, cfg.BBox.MaxX, cfg.BBox.MaxY, cfg.BBox.MaxZ)
	}
	if recallActive {
		fmt.Println("recall: ACTIVE")
	} else {
		fmt.Println("recall: inactive")
	}

	fmt.Println("agents:")
	for _, ag := range agents {
		marker := ""
		if ag.ID == agentID {
			marker = " <-- you"
		}
		if ag.ID == leader {
			marker += " [leader]"
		}
		fmt.Printf("  %s %-20s status=%-10s job=%-12s fuel=%-6d last_seen=%s%s\n",
			presenceIndicator(ag, heartbeatTimeout), ag.ID, ag.Status, ag.Job, ag.Fuel,
			ag.LastSeen.Format("15:04:05"), marker)
	}

	doneT, activeT, idleT := 0, 0, 0
	for _, t := range tunnels {
		switch t.State {
		case model.TunnelDone:
			doneT++
		case model.TunnelIdle:
			idleT++
		default:
			activeT++
		}
	}
	fmt.Printf("tunnels: %d done, %d active/claimed, %d idle (of %d)\n", doneT, activeT, idleT, len(tunnels))

	queuedN, completedN, failedN := 0, 0, 0
	for _, j := range queued {
		switch j.Status {
		case model.JobQueued, model.JobClaimed:
			queuedN++
		case model.JobCompleted:
			completedN++
		case model.JobFailed:
			failedN++
		}
	}
	fmt.Printf("jobs: %d pending, %d completed, %d failed (ledger total %d)\n", queuedN, completedN, failedN, len(queued))

	return 0
}

// electLeader returns the lexicographically smallest ID among live, or
// "" if live is empty, mirroring pkg/membership.Table.Leader's rule for
// read-only display (no self-inclusion, since status is not an agent).
func electLeader(live []model.Agent) string {
	leader := ""
	for _, a := range live {
		if leader == "" || a.ID < leader {
			leader = a.ID
		}
	}
	return leader
}

func presenceIndicator(ag model.Agent, timeout time.Duration) string {
	if time.Since(ag.LastSeen) < timeout {
		return "[+]"
	}
	return "[-]"
}
