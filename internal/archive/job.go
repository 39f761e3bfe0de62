package archive

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"teslabox/internal/camera"
	"teslabox/internal/ffmpeg"
	"teslabox/internal/services"
)

// Event is the recorder's description of what triggered the save.
type Event struct {
	Type      camera.EventType `json:"type"`
	Timestamp int64            `json:"timestamp"`
	Angle     camera.Angle     `json:"angle"`
	EstLat    float64          `json:"est_lat"`
	EstLon    float64          `json:"est_lon"`
}

// TempFile is one camera clip copied into the ram directory. Timestamp is the
// clip's start in unix seconds; Start and Duration select the part to keep.
type TempFile struct {
	Timestamp int64        `json:"timestamp"`
	Angle     camera.Angle `json:"angle"`
	Start     float64      `json:"start"`
	Duration  float64      `json:"duration"`
	File      string       `json:"file"`
}

// Request is what callers push.
type Request struct {
	ID        string     `json:"id"`
	Event     Event      `json:"event"`
	Folder    string     `json:"folder"`
	HWVersion int        `json:"hw_version"`
	TempFiles []TempFile `json:"temp_files"`
}

// Job is the persisted descriptor. Request fields never change after Push;
// the rest records progress.
type Job struct {
	Request

	CarName       string         `json:"car_name"`
	Notifications []string       `json:"notifications"`
	Quality       ffmpeg.Quality `json:"quality"`
	Condensed     bool           `json:"condensed"`
	ChaptersFile  string         `json:"chapters_file"`
	ConcatFile    string         `json:"concat_file"`
	OutFile       string         `json:"out_file"`
	OutKey        string         `json:"out_key"`
	VideoURL      string         `json:"video_url,omitempty"`
	// Files maps a timestamp to its rendered segment and, in condensed mode,
	// "timestamp-angle" to that clip's scene score log.
	Files     map[string]string `json:"files"`
	Caches    map[int64]bool    `json:"caches"`
	StartedAt time.Time         `json:"started_at"`
	Step      int               `json:"step"`
}

func (j Job) JobID() string    { return j.ID }
func (j Job) CurrentStep() int { return j.Step }

// Timestamps returns the distinct clip timestamps in ascending order.
func (j Job) Timestamps() []int64 {
	var out []int64
	for _, tf := range j.TempFiles {
		if !slices.Contains(out, tf.Timestamp) {
			out = append(out, tf.Timestamp)
		}
	}
	slices.Sort(out)
	return out
}

// clips returns the four clips at ts, or false when any angle is missing.
func (j Job) clips(ts int64) (map[camera.Angle]TempFile, bool) {
	out := make(map[camera.Angle]TempFile, 4)
	for _, tf := range j.TempFiles {
		if tf.Timestamp != ts {
			continue
		}
		if _, seen := out[tf.Angle]; !seen {
			out[tf.Angle] = tf
		}
	}
	for _, angle := range camera.Angles() {
		if _, ok := out[angle]; !ok {
			return nil, false
		}
	}
	return out, true
}

func segmentKey(ts int64) string { return strconv.FormatInt(ts, 10) }

func logKey(ts int64, angle camera.Angle) string {
	return fmt.Sprintf("%d-%s", ts, angle)
}

// artifacts lists every file the job may own.
func (j Job) artifacts() []string {
	paths := make([]string, 0, len(j.TempFiles)+len(j.Files)+3)
	for _, tf := range j.TempFiles {
		paths = append(paths, tf.File)
	}
	for _, file := range j.Files {
		paths = append(paths, file)
	}
	return append(paths, j.ChaptersFile, j.ConcatFile, j.OutFile)
}

func (j Job) wantsNotification(kind string) bool {
	return slices.Contains(j.Notifications, kind)
}

// dayFolder is the date part of a "YYYY-MM-DD_HH-MM-SS" folder name.
func dayFolder(folder string) string {
	day, _, _ := strings.Cut(folder, "_")
	return day
}

// OutKey builds the object key for an archive.
func OutKey(car, folder string, eventType camera.EventType) string {
	return fmt.Sprintf("%s/archives/%s/%s-%s.mp4", car, dayFolder(folder), folder, eventType)
}

// Validate reports the first missing or malformed field.
func (r Request) Validate() error {
	invalid := func(format string, args ...any) error {
		return services.Wrap(services.ErrValidation, "archive", "push", fmt.Sprintf(format, args...), nil)
	}
	if strings.TrimSpace(r.ID) == "" {
		return invalid("id is required")
	}
	if strings.TrimSpace(r.Folder) == "" {
		return invalid("folder is required")
	}
	if strings.TrimSpace(string(r.Event.Type)) == "" {
		return invalid("event type is required")
	}
	if r.Event.Timestamp <= 0 {
		return invalid("event timestamp is required")
	}
	if r.Event.Angle != "" && !r.Event.Angle.Valid() {
		return invalid("unknown event angle %q", r.Event.Angle)
	}
	if len(r.TempFiles) == 0 {
		return invalid("at least one temp file is required")
	}
	for i, tf := range r.TempFiles {
		switch {
		case !tf.Angle.Valid():
			return invalid("temp file %d has unknown angle %q", i, tf.Angle)
		case strings.TrimSpace(tf.File) == "":
			return invalid("temp file %d has no path", i)
		case tf.Timestamp <= 0:
			return invalid("temp file %d has no timestamp", i)
		case tf.Start < 0 || tf.Duration <= 0:
			return invalid("temp file %d has invalid range %v+%v", i, tf.Start, tf.Duration)
		}
	}
	return nil
}
