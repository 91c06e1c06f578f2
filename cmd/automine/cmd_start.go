package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DannyDoesGraphics/auto-mine/pkg/pose"
	"github.com/DannyDoesGraphics/auto-mine/pkg/tunnel"
	"github.com/DannyDoesGraphics/auto-mine/pkg/worker"
)

func (a *app) cmdStart(args []string) int {
	flags := flag.NewFlagSet("start", flag.ContinueOnError)
	agent := flags.String("agent", "", "agent ID")
	fuel := flags.Int("fuel", 1000, "starting fuel level (simulated world)")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	agentID, err := a.resolveAgent(*agent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "automine: %v\n", err)
		return 1
	}

	cfg, err := a.store.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "automine: start: %v\n", err)
		return 1
	}
	if cfg == nil {
		fmt.Fprintln(os.Stderr, "automine: start: no configuration set; run 'automine configure' first")
		return 1
	}

	if _, err := a.store.RegisterAgent(agentID); err != nil {
		fmt.Fprintf(os.Stderr, "automine: start: register: %v\n", err)
		return 1
	}

	if err := a.store.InitTunnelPlan(tunnel.GeneratePlan(*cfg)); err != nil {
		fmt.Fprintf(os.Stderr, "automine: start: tunnel plan: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Fprintln(os.Stderr, "\nautomine: stopping")
		cancel()
	}()

	world := newSimWorld(*fuel)
	tracker := pose.New(cfg.BBox)
	calibrated, err := pose.Calibrate(ctx, world, pose.CalibrationParams{
		SpawnFacing:     cfg.SpawnFacing,
		MaxClimbRetries: cfg.ClearRetryLimit,
		BaseBackoff:     200 * time.Millisecond,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "automine: start: calibrate: %v\n", err)
		return 1
	}
	tracker.SetCalibrated(calibrated)

	w, err := worker.New(a.store, tracker, worker.Deps{Actuator: world, Inventory: world, Inspector: world}, a.quarryID, agentID, *cfg, cfg.MaxJobFailures)
	if err != nil {
		fmt.Fprintf(os.Stderr, "automine: start: %v\n", err)
		return 1
	}

	outcomes, err := w.Resume()
	if err != nil {
		fmt.Fprintf(os.Stderr, "automine: start: resume: %v\n", err)
		return 1
	}
	for _, o := range outcomes {
		if !o.Verified {
			fmt.Fprintf(os.Stderr, "automine: start: unresolved journal entry %d (%s): %v\n", o.Entry.ID, o.Entry.Kind, o.Err)
		}
	}

	fmt.Fprintf(os.Stderr, "automine: agent %s starting in quarry %s\n", agentID, a.quarryID)
	for {
		select {
		case <-ctx.Done():
			return 0
		default:
		}
		if err := w.Tick(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "automine: tick: %v\n", err)
		}
	}
}
