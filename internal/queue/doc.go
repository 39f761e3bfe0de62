// Package queue persists pipeline state in SQLite.
//
// The Store holds three tables: the job journal (one row per in-flight job
// descriptor, ordered by arrival), the append-only archive record log, and the
// stream registry mapping each camera angle to its latest published folder.
// The journal lets both pipelines resume a job from its last durable step
// after a restart; the other two back the read-only list accessors.
//
// Schema changes bump schemaVersion in schema.go; users clear the database to
// adopt the new schema.
package queue
