package camera_test

import (
	"testing"

	"teslabox/internal/camera"
)

func TestParseAngle(t *testing.T) {
	for _, raw := range []string{"front", " Right ", "BACK", "left"} {
		if _, err := camera.ParseAngle(raw); err != nil {
			t.Fatalf("ParseAngle(%q) returned error: %v", raw, err)
		}
	}
	if _, err := camera.ParseAngle("roof"); err == nil {
		t.Fatal("expected error for unknown angle")
	}
}

func TestAnglesOrder(t *testing.T) {
	got := camera.Angles()
	want := []camera.Angle{camera.Front, camera.Right, camera.Back, camera.Left}
	if len(got) != len(want) {
		t.Fatalf("unexpected angle count %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("angle %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestTitles(t *testing.T) {
	cases := []struct {
		got  string
		want string
	}{
		{camera.Front.Title(), "Front"},
		{camera.Left.Title(), "Left"},
		{camera.Sentry.Title(), "Sentry"},
		{camera.EventType("userInteraction").Title(), "UserInteraction"},
		{camera.EventType("").Title(), ""},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("got %q want %q", tc.got, tc.want)
		}
	}
	if !camera.Sentry.IsSentry() || camera.EventType("honk").IsSentry() {
		t.Fatal("unexpected IsSentry result")
	}
}
