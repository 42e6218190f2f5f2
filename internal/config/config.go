package config

type (
	Config struct {
		Logging   LoggingConfig   `yaml:"logging"`
		Scheduler SchedulerConfig `yaml:"scheduler"`
	}

	LoggingConfig struct {
		Level      string `yaml:"level"`  // debug, info, warn, error
		Format     string `yaml:"format"` // json, text
		Output     string `yaml:"output"` // stdout, file, both
		File       string `yaml:"file"`
		MaxSize    int    `yaml:"max_size"` // MB
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"` // days
	}

	SchedulerConfig struct {
		// StoreDir is where the persisted snapshot blob lives.
		StoreDir string `yaml:"store_dir"`
		// Mode is the initial watchdog cadence (eco, balanced, aggressive)
		// for a cold start; the persisted snapshot wins once one exists.
		Mode string `yaml:"mode"`
		// Profile selects platform scheduling limits: generic, mobile.
		Profile string `yaml:"profile"`
		// MetricsBind exposes the prometheus registry over HTTP when
		// non-empty, e.g. "127.0.0.1:9184".
		MetricsBind string `yaml:"metrics_bind"`
	}
)
