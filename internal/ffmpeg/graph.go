package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
)

// Filter is a single filter node such as scale=640:480.
type Filter struct {
	Name string
	Args []string
}

func (f Filter) String() string {
	if len(f.Args) == 0 {
		return f.Name
	}
	return f.Name + "=" + strings.Join(f.Args, ":")
}

// Chain applies filters in sequence from labelled inputs to labelled outputs.
type Chain struct {
	Inputs  []string
	Filters []Filter
	Outputs []string
}

func (c Chain) String() string {
	var b strings.Builder
	for _, in := range c.Inputs {
		b.WriteString("[" + in + "]")
	}
	for i, f := range c.Filters {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.String())
	}
	for _, out := range c.Outputs {
		b.WriteString(" [" + out + "]")
	}
	return b.String()
}

// Graph is an ordered list of chains rendered as a -filter_complex value.
type Graph []Chain

func (g Graph) String() string {
	parts := make([]string, 0, len(g))
	for _, chain := range g {
		parts = append(parts, chain.String())
	}
	return strings.Join(parts, "; ")
}

// Input labels the n-th command line input.
func Input(n int) string { return strconv.Itoa(n) }

func Scale(width, height int) Filter {
	return Filter{Name: "scale", Args: []string{strconv.Itoa(width), strconv.Itoa(height)}}
}

func Pad(width, height int) Filter {
	return Filter{Name: "pad", Args: []string{strconv.Itoa(width), strconv.Itoa(height)}}
}

// Overlay places the second input at x:y over the first.
func Overlay(x, y int) Filter {
	return Filter{Name: "overlay", Args: []string{strconv.Itoa(x), strconv.Itoa(y)}}
}

// Concat joins n video-only segments.
func Concat(n int) Filter {
	return Filter{Name: "concat", Args: []string{fmt.Sprintf("n=%d", n), "v=1"}}
}

// Select keeps frames for which expr is non-zero. Commas in expr must be escaped.
func Select(expr string) Filter {
	return Filter{Name: "select", Args: []string{expr}}
}

// Metadata prints frame metadata to file.
func Metadata(mode, file string) Filter {
	return Filter{Name: "metadata", Args: []string{mode, "file=" + file}}
}

// TextStyle holds the drawtext font and placement settings.
type TextStyle struct {
	FontFile    string
	FontColor   string
	FontSize    int
	BorderWidth int
	BorderColor string
	X           int
	Y           int
}

// DrawText burns text into the video. text must already be escaped, see Caption.
func DrawText(style TextStyle, text string) Filter {
	return Filter{Name: "drawtext", Args: []string{
		"fontfile='" + style.FontFile + "'",
		"fontcolor=" + style.FontColor,
		"fontsize=" + strconv.Itoa(style.FontSize),
		"borderw=" + strconv.Itoa(style.BorderWidth),
		"bordercolor=" + style.BorderColor + "@1.0",
		"x=" + strconv.Itoa(style.X),
		"y=" + strconv.Itoa(style.Y),
		"text='" + text + "'",
	}}
}

var captionEscaper = strings.NewReplacer(
	"'", "’",
	`\`, "",
	":", `\:`,
	"%", `\%`,
)

// EscapeText makes free-form text safe inside a quoted drawtext value.
func EscapeText(value string) string {
	return captionEscaper.Replace(value)
}

// Caption renders "TeslaBox {car} {label} {clock}" where the clock counts up
// from base, a unix timestamp in seconds.
func Caption(car, label string, base float64) string {
	parts := []string{"TeslaBox", EscapeText(car)}
	if label = strings.TrimSpace(label); label != "" {
		parts = append(parts, EscapeText(label))
	}
	parts = append(parts, `%{pts\:localtime\:`+formatNumber(base)+`}`)
	return strings.Join(parts, " ")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
