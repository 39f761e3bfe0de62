package ffmpeg

import (
	"fmt"
	"strings"
)

// Quality is an encode tier; each pipeline maps it to its own CRF.
type Quality string

const (
	Highest Quality = "highest"
	High    Quality = "high"
	Medium  Quality = "medium"
	Low     Quality = "low"
	Lowest  Quality = "lowest"
)

// ParseQuality converts a configured tier name into a Quality.
func ParseQuality(value string) (Quality, error) {
	q := Quality(strings.ToLower(strings.TrimSpace(value)))
	switch q {
	case Highest, High, Medium, Low, Lowest:
		return q, nil
	default:
		return "", fmt.Errorf("unknown quality tier %q", value)
	}
}

// CRFTable maps each tier to a constant rate factor.
type CRFTable map[Quality]int

// CRF returns the factor for q, falling back to the medium tier.
func (t CRFTable) CRF(q Quality) int {
	if crf, ok := t[q]; ok {
		return crf
	}
	return t[Medium]
}

// Encode carries x264 rate control settings appended after the filter graph.
type Encode struct {
	Preset string
	CRF    int
	// FrameRate forces an output rate when positive.
	FrameRate int
}

func (e Encode) args() []string {
	args := []string{"-preset", e.Preset}
	if e.FrameRate > 0 {
		args = append(args, "-r", fmt.Sprintf("%d", e.FrameRate))
	}
	return append(args, "-crf", fmt.Sprintf("%d", e.CRF))
}
