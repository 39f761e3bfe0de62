// Package pipeline runs persistent, step-resumable jobs on a single worker.
//
// An Engine owns a FIFO of job descriptors and executes exactly one at a time.
// Each job carries its own step counter; the engine invokes the step matching
// that counter, journals the returned descriptor, and moves on once the step
// advances. Transient failures (see services.Classify) wait RetryDelay and
// re-enter the same step, keeping the job at the head of the queue. Permanent
// failures run the job's cleanup hook and drop it. Journaled jobs are reloaded
// by Start so a restarted process resumes from the last durable step.
package pipeline
