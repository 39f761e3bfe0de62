package scenes

import (
	"sort"

	"teslabox/internal/camera"
)

// Scene is a contiguous run of seconds attributed to one angle. Key is the
// 1-based position used to label the scene's input in the filter graph.
type Scene struct {
	Angle    camera.Angle
	Start    int
	Duration int
	Key      int
}

// End returns the first second after the scene.
func (s Scene) End() int { return s.Start + s.Duration }

// Options tunes Select.
type Options struct {
	// MinDuration is the shortest run that may be cut away from without an event.
	MinDuration int
	// WindowStart and WindowEnd bound the covered range [WindowStart, WindowEnd).
	// A zero WindowEnd ends the last scene one second after the last triple.
	WindowStart int
	WindowEnd   int
	// Fallback is the angle used when there are no triples at all. Defaults to front.
	Fallback camera.Angle
}

type key struct {
	second int
	angle  camera.Angle
}

// Merge combines triple sets, keeping the highest score per (second, angle).
// An event flag on any duplicate survives the merge.
func Merge(sets ...[]Triple) []Triple {
	var merged []Triple
	index := make(map[key]int)
	for _, set := range sets {
		for _, t := range set {
			k := key{t.Second, t.Angle}
			if pos, ok := index[k]; ok {
				if t.Score > merged[pos].Score {
					merged[pos].Score = t.Score
				}
				merged[pos].IsEvent = merged[pos].IsEvent || t.IsEvent
				continue
			}
			index[k] = len(merged)
			merged = append(merged, t)
		}
	}
	return merged
}

// MarkEvent flags the triple matching the triggering angle and second.
func MarkEvent(triples []Triple, angle camera.Angle, second int) []Triple {
	for i := range triples {
		if triples[i].Angle == angle && triples[i].Second == second {
			triples[i].IsEvent = true
		}
	}
	return triples
}

// Order sorts by second ascending, then events first, then score descending,
// so the first triple of each second is that second's winner.
func Order(triples []Triple) []Triple {
	sorted := append([]Triple(nil), triples...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Second != b.Second {
			return a.Second < b.Second
		}
		if a.IsEvent != b.IsEvent {
			return a.IsEvent
		}
		return a.Score > b.Score
	})
	return sorted
}

// Select walks the winning angle of each scored second and emits scenes.
//
// The current run keeps going while the winner matches its angle, or while a
// non-event winner is either a one-second flicker (the next second's winner
// differs) or the run is still shorter than MinDuration. Seconds with no score
// extend the run in progress. A cut starts the new run at the cut second.
func Select(triples []Triple, opts Options) []Scene {
	winners := winnersBySecond(Order(triples))

	if len(winners) == 0 {
		if opts.WindowEnd <= opts.WindowStart {
			return nil
		}
		fallback := opts.Fallback
		if fallback == "" {
			fallback = camera.Front
		}
		return []Scene{{Angle: fallback, Start: opts.WindowStart, Duration: opts.WindowEnd - opts.WindowStart, Key: 1}}
	}

	start := min(opts.WindowStart, winners[0].Second)
	end := opts.WindowEnd
	if last := winners[len(winners)-1].Second + 1; end < last {
		end = last
	}

	byAngle := make(map[int]camera.Angle, len(winners))
	for _, w := range winners {
		byAngle[w.Second] = w.Angle
	}

	var scenes []Scene
	current := winners[0].Angle
	for _, w := range winners {
		next, hasNext := byAngle[w.Second+1]
		flicker := !hasNext || w.Angle != next
		if w.Angle == current || (!w.IsEvent && (flicker || w.Second-start < opts.MinDuration)) {
			continue
		}
		scenes = append(scenes, Scene{Angle: current, Start: start, Duration: w.Second - start, Key: len(scenes) + 1})
		start = w.Second
		current = w.Angle
	}
	scenes = append(scenes, Scene{Angle: current, Start: start, Duration: end - start, Key: len(scenes) + 1})
	return scenes
}

func winnersBySecond(ordered []Triple) []Triple {
	winners := make([]Triple, 0, len(ordered))
	for i, t := range ordered {
		if i > 0 && ordered[i-1].Second == t.Second {
			continue
		}
		winners = append(winners, t)
	}
	return winners
}
