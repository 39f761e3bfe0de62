package logging

import (
	"strings"
)

// FormatSubject builds the pipeline/job/step subject string used in console output,
// for example "Archive · Job 3f2a (step 4)".
func FormatSubject(pipeline, jobID, step string) string {
	pipeline = strings.TrimSpace(pipeline)
	jobID = strings.TrimSpace(jobID)
	step = strings.TrimSpace(step)
	parts := make([]string, 0, 2)
	if pipeline != "" {
		parts = append(parts, strings.ToUpper(pipeline[:1])+strings.ToLower(pipeline[1:]))
	}
	switch {
	case jobID != "" && step != "":
		parts = append(parts, "Job "+jobID+" (step "+step+")")
	case jobID != "":
		parts = append(parts, "Job "+jobID)
	case step != "":
		parts = append(parts, "step "+step)
	}
	return strings.Join(parts, " · ")
}
