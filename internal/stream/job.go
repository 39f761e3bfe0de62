package stream

import (
	"fmt"
	"strings"
	"time"

	"teslabox/internal/camera"
	"teslabox/internal/ffmpeg"
	"teslabox/internal/services"
)

// Request is what callers push: one freshly recorded clip for one angle.
type Request struct {
	ID        string       `json:"id"`
	Angle     camera.Angle `json:"angle"`
	Folder    string       `json:"folder"`
	HWVersion int          `json:"hw_version"`
	// Timestamp is the clip start in unix seconds, used as the caption clock base.
	Timestamp int64  `json:"timestamp"`
	TempFile  string `json:"temp_file"`
}

// Job is the persisted stream descriptor.
type Job struct {
	Request

	CarName   string         `json:"car_name"`
	Quality   ffmpeg.Quality `json:"quality"`
	Copy      bool           `json:"copy"`
	File      string         `json:"file"`
	OutFile   string         `json:"out_file"`
	OutKey    string         `json:"out_key"`
	StartedAt time.Time      `json:"started_at"`
	Step      int            `json:"step"`
}

func (j Job) JobID() string    { return j.ID }
func (j Job) CurrentStep() int { return j.Step }

// OutKey builds the object key for an angle's published stream clip.
func OutKey(car, folder string, angle camera.Angle) string {
	day, _, _ := strings.Cut(folder, "_")
	return fmt.Sprintf("%s/streams/%s/%s-%s.mp4", car, day, folder, angle)
}

// Validate reports the first missing or malformed field.
func (r Request) Validate() error {
	invalid := func(format string, args ...any) error {
		return services.Wrap(services.ErrValidation, "stream", "push", fmt.Sprintf(format, args...), nil)
	}
	switch {
	case strings.TrimSpace(r.ID) == "":
		return invalid("id is required")
	case !r.Angle.Valid():
		return invalid("unknown angle %q", r.Angle)
	case strings.TrimSpace(r.Folder) == "":
		return invalid("folder is required")
	case r.Timestamp <= 0:
		return invalid("timestamp is required")
	case strings.TrimSpace(r.TempFile) == "":
		return invalid("temp file is required")
	}
	return nil
}
