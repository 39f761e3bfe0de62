// Package logs reads the daemon's JSON log file for the CLI: the last N lines
// and, when following, lines appended afterwards.
package logs
