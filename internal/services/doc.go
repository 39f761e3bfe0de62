// Package services defines shared utilities consumed by the pipelines and
// their external collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, pipeline names, step numbers, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures carry the
//     component and operation that produced them.
//   - Classify, the single place where a failure is tagged transient or
//     permanent. The pipeline engine branches on that tag and nothing else.
//
// Collaborators that know a failure is retryable should wrap it with
// ErrTransient (or ErrNoConnection) instead of relying on error-string sniffing.
package services
