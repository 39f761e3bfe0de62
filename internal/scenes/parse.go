package scenes

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"teslabox/internal/camera"
)

// Triple is one scored candidate: the angle's scene-change score at a
// window-absolute second.
type Triple struct {
	Second  int
	Angle   camera.Angle
	Score   float64
	IsEvent bool
}

// ParseLog reads a metadata=print log for one clip. Header lines (those
// containing ':') set the current second from their last field, rounded,
// shifted by offset and clamped to lastSecond. Other lines carry a score after
// their last '='. Duplicate seconds keep the highest score.
func ParseLog(r io.Reader, angle camera.Angle, offset, lastSecond int) ([]Triple, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		triples []Triple
		index   = make(map[int]int)
		second  int
		haveSec bool
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.Contains(line, ":") {
			fields := strings.Split(line, ":")
			pts, err := strconv.ParseFloat(strings.TrimSpace(fields[len(fields)-1]), 64)
			if err != nil {
				haveSec = false
				continue
			}
			second = min(int(math.Round(pts))+offset, lastSecond)
			haveSec = true
			continue
		}
		if !haveSec {
			continue
		}
		raw := line
		if idx := strings.LastIndex(line, "="); idx >= 0 {
			raw = line[idx+1:]
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			continue
		}
		if pos, ok := index[second]; ok {
			triples[pos].Score = math.Max(triples[pos].Score, score)
			continue
		}
		index[second] = len(triples)
		triples = append(triples, Triple{Second: second, Angle: angle, Score: score})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read scene log for %s: %w", angle, err)
	}
	return triples, nil
}
