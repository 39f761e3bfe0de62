// Package api exposes the daemon over HTTP: health, archive records, the
// stream registry, the pending queue, and endpoints that push new jobs.
//
// NewRouter builds the chi handler tree served by the daemon; Client is the
// matching caller used by the CLI.
package api
