package config

const (
	defaultRamDir            = "/mnt/ram"
	defaultStateDir          = "~/.local/share/teslabox"
	defaultLogDir            = "~/.local/share/teslabox/logs"
	defaultIconFile          = "~/.local/share/teslabox/assets/favicon.ico"
	defaultFontFile          = "~/.local/share/teslabox/assets/FreeSans.ttf"
	defaultAPIBind           = "127.0.0.1:7489"
	defaultCarName           = "TeslaBox"
	defaultQuality           = "medium"
	defaultPreset            = "veryfast"
	defaultSignedExpiryHours = 7 * 24
	defaultCinematicFrames   = 24
	defaultCinematicDuration = 1
	defaultRequestTimeout    = 10
	defaultEventsTopic       = "teslabox.events"
	defaultArchiveTopic      = "teslabox.archive.jobs"
	defaultStreamTopic       = "teslabox.stream.jobs"
	defaultGroupID           = "teslabox"
	defaultLivenessTarget    = "1.1.1.1:53"
	defaultLivenessInterval  = 10
	defaultLivenessTimeout   = 3
	defaultRetryDelay        = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"

	// NotifyFullVideo requests delivery of the archive link once an event is published.
	NotifyFullVideo = "fullVideo"
)

var qualityTiers = []string{"highest", "high", "medium", "low", "lowest"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RamDir:   defaultRamDir,
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			IconFile: defaultIconFile,
			FontFile: defaultFontFile,
			APIBind:  defaultAPIBind,
		},
		Car: Car{
			Name: defaultCarName,
		},
		Archive: Archive{
			DashcamQuality:    defaultQuality,
			SentryQuality:     defaultQuality,
			Preset:            defaultPreset,
			SignedExpiryHours: defaultSignedExpiryHours,
			CinematicFrames:   defaultCinematicFrames,
			CinematicDuration: defaultCinematicDuration,
		},
		Stream: Stream{
			Quality: defaultQuality,
			Preset:  defaultPreset,
		},
		Storage: Storage{
			UseSSL: true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultRequestTimeout,
			Deliver:        []string{NotifyFullVideo},
		},
		Kafka: Kafka{
			EventsTopic:  defaultEventsTopic,
			ArchiveTopic: defaultArchiveTopic,
			StreamTopic:  defaultStreamTopic,
			GroupID:      defaultGroupID,
		},
		Liveness: Liveness{
			Target:   defaultLivenessTarget,
			Interval: defaultLivenessInterval,
			Timeout:  defaultLivenessTimeout,
		},
		Workflow: Workflow{
			RetryDelay: defaultRetryDelay,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
