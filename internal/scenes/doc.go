// Package scenes picks, second by second, which camera to show in a
// condensed archive.
//
// ParseLog turns the scene-score instrumentation written by ffmpeg's
// metadata filter into (second, angle, score) triples. Merge, MarkEvent and
// Order prepare the candidates and Select walks them into contiguous,
// single-angle Scenes covering the whole window. Nothing here touches the
// filesystem or runs a subprocess.
package scenes
