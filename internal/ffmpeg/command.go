package ffmpeg

import (
	"fmt"
	"strings"

	"teslabox/internal/camera"
)

const (
	iconSize          = 25
	captionSize       = 25
	fontColor         = "white"
	borderColor       = "black"
	captionX          = 38
	condensedY        = 930
	condensedIcon     = 928
	quadY             = 1050
	quadIcon          = 1048
	iconX             = 8
	hw4FrontWidth     = 1448
	hw4FrontH         = 938
	hw4CondensedDelta = -22
)

// ArchiveFrameRate is the output rate forced on every archive segment render.
const ArchiveFrameRate = 24

func baseArgs() []string {
	return []string{"-y", "-hide_banner", "-loglevel", "error"}
}

func seekArgs(start, duration float64, file string) []string {
	return []string{"-ss", formatNumber(start), "-t", formatNumber(duration), "-i", file}
}

// SceneDetectParams describes one clip's scene score extraction.
type SceneDetectParams struct {
	Input        string
	Start        float64
	Duration     float64
	EveryNFrames int
	LogFile      string
}

// SceneDetect samples every n-th frame and prints its scene score to LogFile.
func SceneDetect(p SceneDetectParams) []string {
	chain := Chain{Filters: []Filter{
		Select(fmt.Sprintf(`not(mod(n\,%d))`, p.EveryNFrames)),
		Select(`gte(scene\,0)`),
		Metadata("print", p.LogFile),
	}}
	args := baseArgs()
	args = append(args, seekArgs(p.Start, p.Duration, p.Input)...)
	return append(args, "-vf", chain.String(), "-an", "-f", "null", "-")
}

// Segment is one scene cut from a camera clip.
type Segment struct {
	Angle    camera.Angle
	File     string
	Start    float64
	Duration float64
}

// CondensedParams describes a scene-switching archive render.
type CondensedParams struct {
	IconFile  string
	FontFile  string
	Segments  []Segment
	HWVersion int
	Caption   string
	Encode    Encode
	Output    string
}

// Condensed concatenates the selected scenes into one captioned segment.
// Input 0 is the icon; scene k (1-based) is input k.
func Condensed(p CondensedParams) []string {
	args := baseArgs()
	args = append(args, "-i", p.IconFile)
	for _, seg := range p.Segments {
		args = append(args, seekArgs(seg.Start, seg.Duration, seg.File)...)
	}

	hw4 := p.HWVersion == HW4
	graph := Graph{{Inputs: []string{Input(0)}, Filters: []Filter{Scale(iconSize, iconSize)}, Outputs: []string{"icon"}}}
	labels := make([]string, 0, len(p.Segments))
	for i, seg := range p.Segments {
		key := i + 1
		if hw4 && seg.Angle == camera.Front {
			label := fmt.Sprintf("v%d", key)
			graph = append(graph, Chain{Inputs: []string{Input(key)}, Filters: []Filter{Scale(hw4FrontWidth, hw4FrontH)}, Outputs: []string{label}})
			labels = append(labels, label)
			continue
		}
		labels = append(labels, Input(key))
	}

	delta := 0
	if hw4 {
		delta = hw4CondensedDelta
	}
	graph = append(graph,
		Chain{Inputs: labels, Filters: []Filter{Concat(len(p.Segments))}, Outputs: []string{"all"}},
		captionChain(condensedY+delta, p.FontFile, p.Caption),
		Chain{Inputs: []string{"video", "icon"}, Filters: []Filter{Overlay(iconX, condensedIcon+delta)}},
	)

	args = append(args, "-filter_complex", graph.String())
	args = append(args, p.Encode.args()...)
	return append(args, p.Output)
}

// QuadParams describes a fixed-layout archive render of all four angles.
type QuadParams struct {
	IconFile  string
	FontFile  string
	Files     map[camera.Angle]string
	Start     float64
	Duration  float64
	Large     camera.Angle
	HWVersion int
	Caption   string
	Encode    Encode
	Output    string
}

// Quad shows the large angle beside a column of three thumbnails.
// Inputs 1..4 are front, right, back and left.
func Quad(p QuadParams) []string {
	args := baseArgs()
	args = append(args, "-i", p.IconFile)
	for _, angle := range camera.Angles() {
		args = append(args, seekArgs(p.Start, p.Duration, p.Files[angle])...)
	}
	args = append(args, "-t", formatNumber(p.Duration))

	large := p.Large
	if !large.Valid() {
		large = camera.Front
	}
	layout := Layout(p.HWVersion)
	graph := Graph{{Inputs: []string{Input(0)}, Filters: []Filter{Scale(iconSize, iconSize)}, Outputs: []string{"icon"}}}
	for i, angle := range camera.Angles() {
		filters := []Filter{Scale(layout.SmallWidth, layout.SmallHeight)}
		if angle == large {
			filters = []Filter{Scale(layout.LargeWidth, layout.LargeHeight), Pad(layout.OverlayWidth, layout.LargeHeight)}
		}
		graph = append(graph, Chain{Inputs: []string{Input(i + 1)}, Filters: filters, Outputs: []string{string(angle)}})
	}

	base := string(large)
	label := base[:1]
	for i, thumb := range ThumbnailOrder(large) {
		label += string(thumb)[:1]
		out := label
		if i == 2 {
			out = "all"
		}
		graph = append(graph, Chain{
			Inputs:  []string{base, string(thumb)},
			Filters: []Filter{Overlay(layout.LargeWidth, layout.SmallHeight*i)},
			Outputs: []string{out},
		})
		base = out
	}

	graph = append(graph,
		captionChain(quadY+layout.HeightDelta, p.FontFile, p.Caption),
		Chain{Inputs: []string{"video", "icon"}, Filters: []Filter{Overlay(iconX, quadIcon+layout.HeightDelta)}},
	)

	args = append(args, "-filter_complex", graph.String())
	args = append(args, p.Encode.args()...)
	return append(args, p.Output)
}

func captionChain(y int, fontFile, caption string) Chain {
	style := TextStyle{
		FontFile:    fontFile,
		FontColor:   fontColor,
		FontSize:    captionSize,
		BorderWidth: 1,
		BorderColor: borderColor,
		X:           captionX,
		Y:           y,
	}
	return Chain{Inputs: []string{"all"}, Filters: []Filter{DrawText(style, caption)}, Outputs: []string{"video"}}
}

// ConcatFiles joins the segments listed in a concat manifest without re-encoding.
func ConcatFiles(manifest, output string) []string {
	args := baseArgs()
	return append(args, "-f", "concat", "-safe", "0", "-i", manifest, "-c", "copy", output)
}

// Manifest renders a concat demuxer list for files in order.
func Manifest(files []string) string {
	lines := make([]string, 0, len(files))
	for _, file := range files {
		lines = append(lines, "file '"+strings.ReplaceAll(file, "'", `'\''`)+"'")
	}
	return strings.Join(lines, "\n")
}

// Silence attaches a silent AAC track so players always find an audio stream.
func Silence(input, output string) []string {
	args := baseArgs()
	return append(args, "-i", input, "-f", "lavfi", "-i", "anullsrc", "-c:v", "copy", "-c:a", "aac", "-shortest", output)
}

// StreamParams describes a captioned live clip re-encode.
type StreamParams struct {
	IconFile string
	FontFile string
	Input    string
	Caption  string
	Tier     StreamTier
	Encode   Encode
	Output   string
}

// StreamCaption scales a live clip to its tier and burns in the caption and icon.
func StreamCaption(p StreamParams) []string {
	style := TextStyle{
		FontFile:    p.FontFile,
		FontColor:   fontColor,
		FontSize:    p.Tier.FontSize,
		BorderWidth: 1,
		BorderColor: borderColor,
		X:           p.Tier.TextX,
		Y:           p.Tier.TextY,
	}
	graph := Graph{
		{Inputs: []string{Input(0)}, Filters: []Filter{Scale(p.Tier.IconSize, p.Tier.IconSize)}, Outputs: []string{"icon"}},
		{Inputs: []string{Input(1)}, Filters: []Filter{Scale(p.Tier.Width, p.Tier.Height), DrawText(style, p.Caption)}, Outputs: []string{"video"}},
		{Inputs: []string{"video", "icon"}, Filters: []Filter{Overlay(p.Tier.IconX, p.Tier.IconY)}},
	}
	args := baseArgs()
	args = append(args, "-i", p.IconFile, "-i", p.Input, "-filter_complex", graph.String())
	args = append(args, p.Encode.args()...)
	return append(args, p.Output)
}
