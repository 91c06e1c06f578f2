// Package config implements the interactive first-boot configuration
// wizard and the fetch/rebroadcast-over-bus lifecycle from spec.md §3
// and §6: configuration is created interactively once per quarry and
// thereafter fetched from peers and rebroadcast on change.
package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
)

// Wizard prompts an operator for the quarry configuration fields,
// backing the "configure" CLI command from spec.md §6.
type Wizard struct {
	in  *bufio.Scanner
	out io.Writer
}

// NewWizard returns a Wizard reading answers from in and writing
// prompts to out.
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{in: bufio.NewScanner(in), out: out}
}

func (w *Wizard) ask(prompt, def string) string {
	fmt.Fprintf(w.out, "%s [%s]: ", prompt, def)
	if !w.in.Scan() {
		return def
	}
	line := strings.TrimSpace(w.in.Text())
	if line == "" {
		return def
	}
	return line
}

func (w *Wizard) askInt(prompt string, def int) int {
	n, err := strconv.Atoi(w.ask(prompt, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return n
}

func (w *Wizard) askCSV(prompt string, def []string) []string {
	raw := w.ask(prompt, strings.Join(def, ","))
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Run interactively collects a fresh QuarryConfig at configVersion 1.
func (w *Wizard) Run() model.QuarryConfig {
	cfg := model.QuarryConfig{ConfigVersion: 1}
	cfg.BBox.MaxX = w.askInt("Bounding box max X", 32)
	cfg.BBox.MaxY = w.askInt("Bounding box max Y", 16)
	cfg.BBox.MaxZ = w.askInt("Bounding box max Z", 32)
	cfg.TunnelSpacing = w.askInt("Tunnel spacing", 3)
	cfg.LayerSpacing = w.askInt("Layer spacing", 3)
	cfg.ChunkLength = w.askInt("Tunnel chunk length", 16)
	cfg.FuelReserve = w.askInt("Fuel reserve", 50)
	cfg.TargetFuel = w.askInt("Target fuel", 1000)
	cfg.SafetyMargin = w.askInt("Fuel safety margin", 10)
	cfg.KeepFuelItems = w.askInt("Fuel items to retain on deposit", 8)
	cfg.HeartbeatInterval = w.askInt("Heartbeat interval (ms)", 2000)
	cfg.HeartbeatTimeout = w.askInt("Heartbeat timeout (ms)", 8000)
	cfg.MaxJobFailures = w.askInt("Max job failures before giving up", 3)
	cfg.FloodFillCap = w.askInt("Flood fill cap", 64)
	cfg.ClearRetryLimit = w.askInt("Obstruction clear retry limit", 3)
	cfg.AllowedFuel = w.askCSV("Allowed fuel item tags", []string{"minecraft:coal"})
	cfg.OreTags = w.askCSV("Ore block tags", []string{"minecraft:iron_ore", "minecraft:coal_ore", "minecraft:diamond_ore"})
	return cfg
}
