package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCar()
	c.normalizePipelines()
	c.normalizeStorage()
	c.normalizeNotifications()
	c.normalizeKafka()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("TESLABOX_RAM_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.RamDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.RamDir) == "" {
		c.Paths.RamDir = defaultRamDir
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}

	fields := []struct {
		key   string
		value *string
	}{
		{"paths.ram_dir", &c.Paths.RamDir},
		{"paths.state_dir", &c.Paths.StateDir},
		{"paths.log_dir", &c.Paths.LogDir},
		{"paths.icon_file", &c.Paths.IconFile},
		{"paths.font_file", &c.Paths.FontFile},
	}
	for _, field := range fields {
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeCar() {
	c.Car.Name = strings.TrimSpace(c.Car.Name)
	if c.Car.Name == "" {
		c.Car.Name = defaultCarName
	}
}

func (c *Config) normalizePipelines() {
	c.Archive.DashcamQuality = normalizeQuality(c.Archive.DashcamQuality)
	c.Archive.SentryQuality = normalizeQuality(c.Archive.SentryQuality)
	c.Stream.Quality = normalizeQuality(c.Stream.Quality)

	c.Archive.Preset = strings.TrimSpace(c.Archive.Preset)
	if c.Archive.Preset == "" {
		c.Archive.Preset = defaultPreset
	}
	c.Stream.Preset = strings.TrimSpace(c.Stream.Preset)
	if c.Stream.Preset == "" {
		c.Stream.Preset = defaultPreset
	}
	if c.Archive.SignedExpiryHours == 0 {
		c.Archive.SignedExpiryHours = defaultSignedExpiryHours
	}
}

func normalizeQuality(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return defaultQuality
	}
	return value
}

func (c *Config) normalizeStorage() {
	lookup := func(target *string, keys ...string) {
		*target = strings.TrimSpace(*target)
		if *target != "" {
			return
		}
		for _, key := range keys {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				*target = strings.TrimSpace(value)
				return
			}
		}
	}
	lookup(&c.Storage.Endpoint, "S3_ENDPOINT")
	lookup(&c.Storage.Region, "AWS_DEFAULT_REGION", "AWS_REGION")
	lookup(&c.Storage.Bucket, "AWS_S3_BUCKET")
	lookup(&c.Storage.AccessKey, "AWS_ACCESS_KEY_ID")
	lookup(&c.Storage.SecretKey, "AWS_SECRET_ACCESS_KEY")
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	deliver := make([]string, 0, len(c.Notifications.Deliver))
	seen := make(map[string]struct{}, len(c.Notifications.Deliver))
	for _, kind := range c.Notifications.Deliver {
		kind = strings.TrimSpace(kind)
		if kind == "" {
			continue
		}
		if _, ok := seen[kind]; ok {
			continue
		}
		seen[kind] = struct{}{}
		deliver = append(deliver, kind)
	}
	c.Notifications.Deliver = deliver
}

func (c *Config) normalizeKafka() {
	brokers := make([]string, 0, len(c.Kafka.Brokers))
	for _, broker := range c.Kafka.Brokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	c.Kafka.Brokers = brokers
	if strings.TrimSpace(c.Kafka.EventsTopic) == "" {
		c.Kafka.EventsTopic = defaultEventsTopic
	}
	if strings.TrimSpace(c.Kafka.ArchiveTopic) == "" {
		c.Kafka.ArchiveTopic = defaultArchiveTopic
	}
	if strings.TrimSpace(c.Kafka.StreamTopic) == "" {
		c.Kafka.StreamTopic = defaultStreamTopic
	}
	if strings.TrimSpace(c.Kafka.GroupID) == "" {
		c.Kafka.GroupID = defaultGroupID
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
