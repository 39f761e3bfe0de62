package deps

import (
	"os/exec"
	"strings"
)

// RequiredFilters are the filters used by the archive and stream graphs.
// drawtext needs an ffmpeg built with libfreetype.
var RequiredFilters = []string{"scale", "pad", "overlay", "concat", "drawtext", "select", "metadata"}

// ResolveFFmpegPath returns the absolute ffmpeg path when it is on PATH, or
// the bare command name otherwise.
func ResolveFFmpegPath(binary string) string {
	name := strings.TrimSpace(binary)
	if name == "" {
		name = "ffmpeg"
	}
	if resolved, err := exec.LookPath(name); err == nil {
		return resolved
	}
	return name
}

// FFmpegRequirement describes the transcoder both pipelines shell out to.
func FFmpegRequirement(binary string) Requirement {
	return Requirement{
		Name:        "FFmpeg",
		Command:     ResolveFFmpegPath(binary),
		Description: "Renders archives, scene scores and stream clips",
		Filters:     RequiredFilters,
	}
}
