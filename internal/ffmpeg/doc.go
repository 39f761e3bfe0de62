// Package ffmpeg builds ffmpeg argument vectors from typed filter graphs and
// runs them through an Invoker.
//
// Filter graphs are assembled as data (Graph, Chain, Filter) and rendered to
// ffmpeg's textual -filter_complex form only when a command is built, so the
// composition logic for archives and stream clips can be asserted without a
// subprocess.
package ffmpeg
