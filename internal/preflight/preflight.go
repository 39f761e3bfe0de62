package preflight

import (
	"context"

	"teslabox/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes the filesystem checks and, when a store is given, the
// object store check. Connectivity is reported separately because an offline
// car is a normal state.
func RunAll(ctx context.Context, cfg *config.Config, store BucketChecker) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("RAM directory", cfg.Paths.RamDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckFileReadable("Overlay icon", cfg.Paths.IconFile),
		CheckFileReadable("Caption font", cfg.Paths.FontFile),
	}
	if store != nil {
		results = append(results, CheckStorage(ctx, store))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
