package util

import (
	"path/filepath"

	"github.com/berfenger/virtualdevices/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig(dataDir string) config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		DataDir:  dataDir,
		Plugins: config.PluginsConfig{
			OverrideDir: filepath.Join(dataDir, "plugins"),
			BuiltinDir:  filepath.Join(dataDir, "builtin"),
			SeedBuiltin: true,
		},
		Database: config.DBConfig{
			Path: filepath.Join(dataDir, "virtdev.db"),
		},
		GPIO: config.GPIOConfig{
			ChipGlob:            "/dev/gpiochip*",
			LockTimeoutMillis:   2000,
			PulseOverheadMicros: 15,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "virtdev",
			HADiscoveryTopic: "homeassistant",
		},
		Monitor: config.MonitorConfig{
			PollIntervalMillis: 30000,
		},
		Port: 8080,
	}
}
