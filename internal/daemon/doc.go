// Package daemon coordinates the long-running TeslaBox process.
//
// It ties the archive and stream pipelines, the liveness monitor, the Kafka
// intake and the HTTP API into a single lifecycle with flock-based locking to
// prevent multiple instances sharing one state directory.
//
// Keep orchestration logic here: pipeline steps live in their own packages
// while the daemon focuses on startup, shutdown and status.
package daemon
