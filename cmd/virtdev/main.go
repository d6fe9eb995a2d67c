// Virtdev hosts virtual devices whose entities are implemented by Lua
// plugins and exposes them over MQTT with Home Assistant discovery.
//
// Usage:
//
//	virtdev [command] [flags]
//
// Running without arguments starts the service.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/berfenger/virtualdevices/internal/config"
)

var (
	configFile     string
	envKeyReplacer = strings.NewReplacer(".", "_")
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "virtdev",
	Short: "Virtual device host",
	Long: `Hosts virtual devices built from Lua plugins.

Devices are configured through the HTTP flow API or imported from YAML.
If no command is specified, the service starts.`,
	Version:      versioninfo.Short(),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (default $CONFIG_FILE)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("virtdev %s (revision: %s)\n", versioninfo.Version, versioninfo.Revision)
	},
}

func buildLogger(cfg *config.Config) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	return zap.Must(zapCfg.Build())
}
