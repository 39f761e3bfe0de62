package api

import (
	"teslabox/internal/pipeline"
	"teslabox/internal/queue"
)

// HealthResponse reports daemon liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
	Online  bool   `json:"online"`
}

// ArchivesResponse lists published archives in completion order.
type ArchivesResponse struct {
	Archives []queue.ArchiveRecord `json:"archives"`
}

// StreamsResponse lists the latest published folder per angle.
type StreamsResponse struct {
	Streams []queue.StreamEntry `json:"streams"`
}

// QueueResponse lists running and queued jobs per pipeline.
type QueueResponse struct {
	Archive []pipeline.PendingJob `json:"archive"`
	Stream  []pipeline.PendingJob `json:"stream"`
}

// AcceptedResponse is returned when a job has been queued.
type AcceptedResponse struct {
	ID string `json:"id"`
}

// ErrorResponse carries a failure message and a stable code.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
