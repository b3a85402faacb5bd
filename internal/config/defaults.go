package config

const (
	defaultConfigPath           = "~/.config/allsky/config.toml"
	defaultDataDir              = "~/.local/share/allsky"
	defaultLogRetentionDays     = 30
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultPollInterval         = 15
	defaultPeriodicInterval     = 900
	defaultCleanupInterval      = 43200
	defaultTaskRetentionHours   = 72
	defaultRestartNotifyEvery   = 10
	defaultScriptTimeout        = 30
	defaultUploadWorkers        = 1
	defaultCaptureInterval      = 60
	defaultCaptureTimeout       = 120
	defaultImageTimeout         = 60
	defaultVideoTimeout         = 3600
	defaultImageRetentionDays   = 30
	defaultUploadTimeout        = 60
	defaultMQTTPort             = 1883
	defaultMQTTBaseTopic        = "allsky"
	defaultNotifyRequestTimeout = 10
	defaultOTelExporter         = "none"
	defaultOTelServiceName      = "allsky"
	defaultOTelSampleRate       = 1.0
	defaultHotplugSubsystem     = "usb"
)

// Upload backend identifiers.
const (
	UploadBackendNone  = "none"
	UploadBackendLocal = "local"
	UploadBackendMQTT  = "mqtt"
)

// Default returns a Config populated with repository defaults. Paths derived
// from data_dir are filled in during normalization.
func Default() Config {
	return Config{
		ConfigLevel: Level,
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		Supervisor: Supervisor{
			PollInterval:       defaultPollInterval,
			PeriodicInterval:   defaultPeriodicInterval,
			CleanupInterval:    defaultCleanupInterval,
			TaskRetentionHours: defaultTaskRetentionHours,
			RestartNotifyEvery: defaultRestartNotifyEvery,
			WatchConfig:        true,
			ScriptTimeout:      defaultScriptTimeout,
		},
		Workers: Workers{
			UploadWorkers: defaultUploadWorkers,
		},
		Capture: Capture{
			Interval: defaultCaptureInterval,
			Timeout:  defaultCaptureTimeout,
			Exposure: -1.0,
			Gain:     -1,
			Bin:      1,
		},
		Image: Image{
			Timeout: defaultImageTimeout,
			Upload:  true,
		},
		Video: Video{
			Timeout:            defaultVideoTimeout,
			ImageRetentionDays: defaultImageRetentionDays,
		},
		Upload: Upload{
			Backend: UploadBackendNone,
			Timeout: defaultUploadTimeout,
			MQTT: UploadMQTT{
				Port:      defaultMQTTPort,
				BaseTopic: defaultMQTTBaseTopic,
				Retain:    true,
			},
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
		},
		Hotplug: Hotplug{
			Subsystems: []string{defaultHotplugSubsystem, "video4linux"},
		},
		OTel: OTel{
			Exporter:    defaultOTelExporter,
			ServiceName: defaultOTelServiceName,
			SampleRate:  defaultOTelSampleRate,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
