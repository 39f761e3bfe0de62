// Package camera names the four dashcam angles and the event types that
// trigger an archive.
package camera

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Angle identifies one of the car's recording cameras.
type Angle string

const (
	Front Angle = "front"
	Right Angle = "right"
	Back  Angle = "back"
	Left  Angle = "left"
)

// Angles returns every angle in the order clips are fed to the compositor.
func Angles() []Angle {
	return []Angle{Front, Right, Back, Left}
}

// ParseAngle converts a raw angle name into an Angle.
func ParseAngle(value string) (Angle, error) {
	angle := Angle(strings.ToLower(strings.TrimSpace(value)))
	if !angle.Valid() {
		return "", fmt.Errorf("unknown camera angle %q", value)
	}
	return angle, nil
}

// Valid reports whether a is one of the four known angles.
func (a Angle) Valid() bool {
	switch a {
	case Front, Right, Back, Left:
		return true
	default:
		return false
	}
}

func (a Angle) String() string { return string(a) }

// Title returns the caption form of the angle, e.g. "Front".
func (a Angle) Title() string { return upperFirst(string(a)) }

// EventType is the recorder's reason for saving a clip set (sentry, user, honk, ...).
type EventType string

// Sentry is the event type raised by sentry mode.
const Sentry EventType = "sentry"

// IsSentry reports whether the event came from sentry mode.
func (e EventType) IsSentry() bool { return e == Sentry }

func (e EventType) String() string { return string(e) }

// Title returns the caption form of the event type, e.g. "Sentry".
func (e EventType) Title() string { return upperFirst(string(e)) }

var titleCaser = cases.Title(language.Und)

// upperFirst upper-cases only the first rune and leaves the rest untouched.
func upperFirst(value string) string {
	if value == "" {
		return value
	}
	_, size := utf8.DecodeRuneInString(value)
	return titleCaser.String(value[:size]) + value[size:]
}
