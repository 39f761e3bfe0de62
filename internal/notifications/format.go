package notifications

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"teslabox/internal/camera"
)

func format(event Event, fields Payload) (payload, bool) {
	switch event {
	case EventArchiveReady:
		return formatArchiveReady(fields), true
	case EventTest:
		return payload{
			title:    "TeslaBox - Test",
			message:  "Notification system test",
			tags:     []string{"teslabox", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

// Title returns the headline used for an archive event:
// "TeslaBox {car} {EventType}".
func Title(carName string, eventType camera.EventType) string {
	return strings.TrimSpace(fmt.Sprintf("TeslaBox %s %s", carName, eventType.Title()))
}

func formatArchiveReady(fields Payload) payload {
	eventType := camera.EventType(fields.String("eventType"))
	message := eventType.Title()
	if eventType.IsSentry() {
		if angle, err := camera.ParseAngle(fields.String("angle")); err == nil {
			message = fmt.Sprintf("%s (%s)", message, angle.Title())
		}
	}
	if ts, ok := fields.Int64("timestamp"); ok && ts > 0 {
		message = fmt.Sprintf("%s at %s", message, time.Unix(ts, 0).Local().Format("2006-01-02 15:04:05"))
	}
	videoURL := fields.String("videoUrl")
	if videoURL != "" {
		message = message + "\n" + videoURL
	}

	data := payload{
		title:   Title(fields.String("carName"), eventType),
		message: message,
		tags:    []string{"teslabox", "archive", string(eventType)},
		click:   videoURL,
	}
	if eventType.IsSentry() {
		data.priority = "high"
	}
	return data
}

// String returns the string form of key, or "" when absent.
func (p Payload) String(key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int64 returns key as an integer when it holds a number or numeric string.
func (p Payload) Int64(key string) (int64, bool) {
	switch v := p[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
