package ffmpeg

import "teslabox/internal/camera"

// HW4 is the hardware version whose cameras record at a different geometry.
const HW4 = 4

// QuadLayout is the geometry of the hero-plus-thumbnails archive composite.
type QuadLayout struct {
	OverlayWidth int
	LargeWidth   int
	LargeHeight  int
	SmallWidth   int
	SmallHeight  int
	// HeightDelta shifts the caption and icon to sit inside the shorter frame.
	HeightDelta int
}

// Layout returns the quad geometry for a hardware version.
func Layout(hwVersion int) QuadLayout {
	if hwVersion == HW4 {
		return QuadLayout{OverlayWidth: 1930, LargeWidth: 1448, LargeHeight: 938, SmallWidth: 482, SmallHeight: 312, HeightDelta: -142}
	}
	return QuadLayout{OverlayWidth: 1920, LargeWidth: 1440, LargeHeight: 1080, SmallWidth: 480, SmallHeight: 360, HeightDelta: 0}
}

// ThumbnailOrder returns the three thumbnails, top to bottom, shown beside the large angle.
func ThumbnailOrder(large camera.Angle) []camera.Angle {
	switch large {
	case camera.Right:
		return []camera.Angle{camera.Left, camera.Front, camera.Back}
	case camera.Back:
		return []camera.Angle{camera.Front, camera.Left, camera.Right}
	case camera.Left:
		return []camera.Angle{camera.Right, camera.Front, camera.Back}
	default:
		return []camera.Angle{camera.Back, camera.Left, camera.Right}
	}
}

// StreamTier is the geometry of a captioned live clip.
type StreamTier struct {
	Width    int
	Height   int
	FontSize int
	IconSize int
	TextX    int
	TextY    int
	IconX    int
	IconY    int
}

// StreamTierFor picks the stream geometry for a quality tier and hardware version.
func StreamTierFor(q Quality, hwVersion int) StreamTier {
	hw4 := hwVersion == HW4
	width := func(hw4Width, width int) int {
		if hw4 {
			return hw4Width
		}
		return width
	}
	switch q {
	case Highest, High:
		return StreamTier{Width: width(1186, 1024), Height: 768, FontSize: 14, IconSize: 18, TextX: 25, TextY: 750, IconX: 5, IconY: 747}
	case Low, Lowest:
		return StreamTier{Width: width(370, 320), Height: 240, FontSize: 9, IconSize: 12, TextX: 19, TextY: 228, IconX: 5, IconY: 227}
	default:
		return StreamTier{Width: width(742, 640), Height: 480, FontSize: 12, IconSize: 15, TextX: 22, TextY: 465, IconX: 5, IconY: 462}
	}
}
