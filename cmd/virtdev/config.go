package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/berfenger/virtualdevices/internal/config"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func initConfig() (*config.Config, error) {

	// alias PORT => VIRTDEV_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("VIRTDEV_PORT", port)
	}

	v := viper.New()
	setConfigDefaults(v)

	v.SetEnvPrefix("virtdev")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	// if defined, try to load config from yaml file
	cfgFile := configFile
	if cfgFile == "" {
		cfgFile = os.Getenv("CONFIG_FILE")
	}
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			v.SetConfigFile(cfgFile)

			err = v.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch v.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// paths default to the data dir
	if cfg.Plugins.OverrideDir == "" {
		cfg.Plugins.OverrideDir = filepath.Join(cfg.DataDir, "plugins")
	}
	if cfg.Plugins.BuiltinDir == "" {
		cfg.Plugins.BuiltinDir = filepath.Join(cfg.DataDir, "builtin")
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(cfg.DataDir, "virtdev.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "warn")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("plugins.override_dir", "")
	v.SetDefault("plugins.builtin_dir", "")
	v.SetDefault("plugins.watch", true)
	v.SetDefault("plugins.seed_builtin", true)
	v.SetDefault("database.path", "")
	v.SetDefault("gpio.chip_glob", "/dev/gpiochip*")
	v.SetDefault("gpio.lock_timeout_millis", 2000)
	v.SetDefault("gpio.pulse_overhead_micros", 15)
	v.SetDefault("mqtt.enable", false)
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.ha_discovery_enable", true)
	v.SetDefault("mqtt.base_topic", "virtdev")
	v.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	v.SetDefault("monitor.poll_interval_millis", 30000)
	v.SetDefault("port", 8080)
	v.SetDefault("http_log", false)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
