// Package preflight provides readiness checks for the filesystem paths,
// binaries and external services TeslaBox depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs every failure; pipelines still
//     start so work can queue while the problem is fixed.
//   - The CLI "teslabox status" command renders the same results as a table.
//
// Object store and connectivity checks are skipped when the feature is not
// configured.
package preflight
