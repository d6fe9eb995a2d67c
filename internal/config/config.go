package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	MIN_POLL_INTERVAL_MILLIS  = 1000
	MAX_PULSE_OVERHEAD_MICROS = 1000
)

type Config struct {
	LogLevel zapcore.Level
	DataDir  string        `mapstructure:"data_dir"`
	Plugins  PluginsConfig `mapstructure:"plugins"`
	Database DBConfig      `mapstructure:"database"`
	GPIO     GPIOConfig    `mapstructure:"gpio"`
	MQTT     MQTTConfig    `mapstructure:"mqtt"`
	Monitor  MonitorConfig `mapstructure:"monitor"`
	Port     uint          `mapstructure:"port"`
	HttpLog  bool          `mapstructure:"http_log"`
}

type PluginsConfig struct {
	// OverrideDir is searched first, BuiltinDir second.
	OverrideDir string `mapstructure:"override_dir"`
	BuiltinDir  string `mapstructure:"builtin_dir"`
	Watch       bool   `mapstructure:"watch"`
	SeedBuiltin bool   `mapstructure:"seed_builtin"`
}

type DBConfig struct {
	Path string
}

type GPIOConfig struct {
	ChipGlob            string `mapstructure:"chip_glob"`
	LockTimeoutMillis   uint32 `mapstructure:"lock_timeout_millis"`
	PulseOverheadMicros uint32 `mapstructure:"pulse_overhead_micros"`
}

func (c GPIOConfig) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMillis) * time.Millisecond
}

func (c GPIOConfig) PulseOverhead() time.Duration {
	return time.Duration(c.PulseOverheadMicros) * time.Microsecond
}

type MonitorConfig struct {
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
}

func (c MonitorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

type MQTTConfig struct {
	Enable            bool
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// Validate fixes topic case and checks bounds.
func (cfg *Config) Validate() error {
	if cfg.Plugins.OverrideDir == "" || cfg.Plugins.BuiltinDir == "" {
		return errors.New("config params plugins.override_dir and plugins.builtin_dir are required")
	}
	if cfg.Plugins.OverrideDir == cfg.Plugins.BuiltinDir {
		return errors.New("config params plugins.override_dir and plugins.builtin_dir must differ")
	}
	if cfg.Database.Path == "" {
		return errors.New("config param database.path is required")
	}
	if cfg.GPIO.LockTimeoutMillis == 0 {
		return errors.New("config param gpio.lock_timeout_millis should be > 0")
	}
	if cfg.GPIO.PulseOverheadMicros > MAX_PULSE_OVERHEAD_MICROS {
		return fmt.Errorf("config param gpio.pulse_overhead_micros should be <= %d", MAX_PULSE_OVERHEAD_MICROS)
	}
	if cfg.Monitor.PollIntervalMillis > 0 && cfg.Monitor.PollIntervalMillis < MIN_POLL_INTERVAL_MILLIS {
		return fmt.Errorf("config param monitor.poll_interval_millis should be 0 or >= %d", MIN_POLL_INTERVAL_MILLIS)
	}

	if !cfg.MQTT.Enable {
		return nil
	}
	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	hadBaseTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic
	return nil
}
