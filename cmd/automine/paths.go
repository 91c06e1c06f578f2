package main

import "path/filepath"

const defaultDir = "automine"
const defaultQuarry = "default"

// defaultDBFor returns the default database path for a quarry, one file
// per quarry under defaultDir.
func defaultDBFor(quarryID string) string {
	return filepath.Join(defaultDir, quarryID+".db")
}
