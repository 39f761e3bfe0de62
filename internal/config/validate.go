package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQuality(); err != nil {
		return err
	}
	if err := c.validateIntervals(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateKafka(); err != nil {
		return err
	}
	return nil
}

// IsQuality reports whether value names a known quality tier.
func IsQuality(value string) bool {
	return slices.Contains(qualityTiers, value)
}

func (c *Config) validateQuality() error {
	for key, value := range map[string]string{
		"archive.dashcam_quality": c.Archive.DashcamQuality,
		"archive.sentry_quality":  c.Archive.SentryQuality,
		"stream.quality":          c.Stream.Quality,
	} {
		if !IsQuality(value) {
			return fmt.Errorf("%s must be one of %s (got %q)", key, strings.Join(qualityTiers, ", "), value)
		}
	}
	return nil
}

func (c *Config) validateIntervals() error {
	if err := ensurePositiveMap(map[string]int{
		"archive.signed_expiry_hours":   c.Archive.SignedExpiryHours,
		"archive.cinematic_frames":      c.Archive.CinematicFrames,
		"archive.cinematic_duration":    c.Archive.CinematicDuration,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
		"liveness.interval":             c.Liveness.Interval,
		"liveness.timeout":              c.Liveness.Timeout,
		"workflow.retry_delay":          c.Workflow.RetryDelay,
	}); err != nil {
		return err
	}
	if c.Workflow.MaxRetries < 0 {
		return errors.New("workflow.max_retries must be >= 0 (0 retries forever)")
	}
	if strings.TrimSpace(c.Liveness.Target) == "" {
		return errors.New("liveness.target must be set")
	}
	return nil
}

func (c *Config) validateStorage() error {
	s := c.Storage
	set := map[string]bool{
		"storage.region":     s.Region != "",
		"storage.bucket":     s.Bucket != "",
		"storage.access_key": s.AccessKey != "",
		"storage.secret_key": s.SecretKey != "",
	}
	var missing []string
	configured := false
	for key, ok := range set {
		if ok {
			configured = true
		} else {
			missing = append(missing, key)
		}
	}
	if configured && len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("storage is partially configured; missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) validateKafka() error {
	if c.Kafka.Intake && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.intake requires kafka.brokers")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
