// Package main hosts the TeslaBox CLI entrypoint and command graph.
//
// The Cobra command tree runs the daemon in the foreground, queues archive
// and stream requests through the daemon's HTTP API, and reads the state
// database directly for listings and journal maintenance. Configuration
// resolution lives here so subcommands stay declarative.
package main
