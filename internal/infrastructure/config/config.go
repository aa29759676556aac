package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for moonrig.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Printer    PrinterConfig    `yaml:"printer"`
	Attachment AttachmentConfig `yaml:"attachment"`
	Motion     MotionConfig     `yaml:"motion"`
	Journal    JournalConfig    `yaml:"journal"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PrinterConfig contains the Moonraker endpoint settings.
type PrinterConfig struct {
	// BaseURL is the Moonraker root, e.g. "http://192.168.1.50:7125".
	// A trailing slash is tolerated and trimmed.
	BaseURL string `yaml:"base_url"`

	// Instance names this printer in telemetry tags and MQTT topics.
	Instance string `yaml:"instance"`

	// APIKey is sent as the X-Api-Key header when set.
	APIKey string `yaml:"api_key"`

	// Auth holds optional credentials for Moonraker's JWT login flow.
	// When both are set the client logs in and sends bearer tokens
	// instead of relying on the API key alone.
	Auth PrinterAuthConfig `yaml:"auth"`

	// Timeout bounds every HTTP request, in seconds.
	Timeout int `yaml:"timeout"`
}

// PrinterAuthConfig contains Moonraker user credentials.
type PrinterAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// AttachmentConfig describes the accessory bounding box as offsets from the
// toolhead reference point (usually the nozzle), in millimetres.
//
// An accessory protruding 30mm to the right of the nozzle and 5mm to the
// left has min_x=-5, max_x=30. Negative values are normal; each axis
// requires min <= max.
type AttachmentConfig struct {
	MinX float64 `yaml:"min_x"`
	MaxX float64 `yaml:"max_x"`
	MinY float64 `yaml:"min_y"`
	MaxY float64 `yaml:"max_y"`
	MinZ float64 `yaml:"min_z"`
	MaxZ float64 `yaml:"max_z"`
}

// MotionConfig contains motion driver settings.
type MotionConfig struct {
	// ZSpeed is the speed for careful Z lifts and plunges, in mm/s.
	ZSpeed float64 `yaml:"z_speed_mm_s"`

	// DefaultSpeed is the travel speed used when a command does not
	// specify one, in mm/s.
	DefaultSpeed float64 `yaml:"default_speed_mm_s"`

	// MinSafeZ is an optional floor below which no target Z is accepted,
	// in mm. Zero disables the check.
	MinSafeZ float64 `yaml:"min_safe_z"`

	// MaxZDelta caps the |dz| of a single relative move, in mm.
	MaxZDelta float64 `yaml:"max_z_delta"`

	// ParkAfterHome moves the toolhead to a derived safe position after a
	// full home, leaving clearance to install the attachment.
	ParkAfterHome bool `yaml:"park_after_home"`
}

// JournalConfig contains command journal settings (SQLite).
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MQTTConfig contains event announcer settings.
type MQTTConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Broker      MQTTBrokerConfig `yaml:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth"`
	QoS         int              `yaml:"qos"`
	TopicPrefix string           `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DiscoveryConfig contains mDNS discovery settings.
type DiscoveryConfig struct {
	// Timeout bounds a browse pass, in seconds.
	Timeout int `yaml:"timeout"`

	// Interface restricts browsing to one network interface. Empty means all.
	Interface string `yaml:"interface"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MOONRIG_SECTION_KEY
// For example: MOONRIG_PRINTER_BASE_URL, MOONRIG_JOURNAL_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
//
// The attachment envelope defaults to all zeros: a bare toolhead with no
// accessory installed, which degrades validation to a plain point-in-limits
// check.
func defaultConfig() *Config {
	return &Config{
		Printer: PrinterConfig{
			Instance: "printer",
			Timeout:  10,
		},
		Motion: MotionConfig{
			ZSpeed:        8.0,
			DefaultSpeed:  25.0,
			MaxZDelta:     50.0,
			ParkAfterHome: true,
		},
		Journal: JournalConfig{
			Path:        "./data/moonrig.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "moonrig",
			},
			QoS:         1,
			TopicPrefix: "moonrig",
		},
		Discovery: DiscoveryConfig{
			Timeout: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MOONRIG_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Printer
	if v := os.Getenv("MOONRIG_PRINTER_BASE_URL"); v != "" {
		cfg.Printer.BaseURL = v
	}
	if v := os.Getenv("MOONRIG_PRINTER_API_KEY"); v != "" {
		cfg.Printer.APIKey = v
	}
	if v := os.Getenv("MOONRIG_PRINTER_USERNAME"); v != "" {
		cfg.Printer.Auth.Username = v
	}
	if v := os.Getenv("MOONRIG_PRINTER_PASSWORD"); v != "" {
		cfg.Printer.Auth.Password = v
	}

	// Journal
	if v := os.Getenv("MOONRIG_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}

	// InfluxDB
	if v := os.Getenv("MOONRIG_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// MQTT
	if v := os.Getenv("MOONRIG_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MOONRIG_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MOONRIG_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Logging
	if v := os.Getenv("MOONRIG_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// All problems are collected and reported together so a bad config file can
// be fixed in one pass.
//
// Returns:
//   - error: Description of validation failures, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Printer validation
	if c.Printer.BaseURL == "" {
		errs = append(errs, "printer.base_url is required")
	} else if u, err := url.Parse(c.Printer.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, "printer.base_url must be an http(s) URL")
	}
	if c.Printer.Timeout <= 0 {
		errs = append(errs, "printer.timeout must be positive")
	}
	if (c.Printer.Auth.Username == "") != (c.Printer.Auth.Password == "") {
		errs = append(errs, "printer.auth requires both username and password")
	}

	// Attachment validation: min <= max per axis (negative offsets are normal)
	if c.Attachment.MinX > c.Attachment.MaxX {
		errs = append(errs, "attachment.min_x must be <= attachment.max_x")
	}
	if c.Attachment.MinY > c.Attachment.MaxY {
		errs = append(errs, "attachment.min_y must be <= attachment.max_y")
	}
	if c.Attachment.MinZ > c.Attachment.MaxZ {
		errs = append(errs, "attachment.min_z must be <= attachment.max_z")
	}

	// Motion validation
	if c.Motion.ZSpeed <= 0 {
		errs = append(errs, "motion.z_speed_mm_s must be positive")
	}
	if c.Motion.DefaultSpeed <= 0 {
		errs = append(errs, "motion.default_speed_mm_s must be positive")
	}
	if c.Motion.MinSafeZ < 0 {
		errs = append(errs, "motion.min_safe_z must not be negative")
	}
	if c.Motion.MaxZDelta <= 0 {
		errs = append(errs, "motion.max_z_delta must be positive")
	}

	// Journal validation
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when journal is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set MOONRIG_INFLUXDB_TOKEN)")
		}
		if c.InfluxDB.Org == "" {
			errs = append(errs, "influxdb.org is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	// MQTT validation
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
		}
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Discovery validation
	if c.Discovery.Timeout <= 0 {
		errs = append(errs, "discovery.timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetTimeout returns the printer request timeout as a Duration.
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Printer.Timeout) * time.Second
}

// GetDiscoveryTimeout returns the mDNS browse timeout as a Duration.
func (c *Config) GetDiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.Timeout) * time.Second
}
