package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"
	"time"
)

// filterProbeTimeout bounds the `-filters` listing run against each binary.
const filterProbeTimeout = 5 * time.Second

// Requirement is an external binary the pipelines shell out to. Filters names
// the ffmpeg filters the binary must have been built with.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Filters     []string
}

// Status reports whether a requirement is usable. Missing lists required
// filters the binary lacks.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
	Missing     []string
}

// CheckBinaries resolves each requirement on PATH and, for requirements that
// list filters, asks the binary which filters it supports.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, check(req))
	}
	return results
}

func check(req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	if len(req.Filters) == 0 {
		status.Available = true
		return status
	}

	supported, err := listFilters(path)
	if err != nil {
		status.Detail = fmt.Sprintf("list filters: %v", err)
		return status
	}
	for _, name := range req.Filters {
		if !slices.Contains(supported, name) {
			status.Missing = append(status.Missing, name)
		}
	}
	if len(status.Missing) > 0 {
		status.Detail = "missing filters: " + strings.Join(status.Missing, ", ")
		return status
	}
	status.Available = true
	return status
}

// listFilters parses `ffmpeg -hide_banner -filters`. Filter rows are a flags
// column, the filter name and its pad signature; header rows are skipped.
func listFilters(path string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), filterProbeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "-hide_banner", "-filters").Output()
	if err != nil {
		return nil, err
	}
	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || !strings.Contains(fields[2], "->") {
			continue
		}
		names = append(names, fields[1])
	}
	return names, scanner.Err()
}
