package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/berfenger/virtualdevices/internal/core/domain"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Entry command flags
var (
	entryTitle        string
	entryManufacturer string
	entryModel        string
	exportOutput      string
)

func init() {
	rootCmd.AddCommand(pluginsCmd)
	rootCmd.AddCommand(entriesCmd)

	entriesCmd.AddCommand(entriesListCmd)
	entriesCmd.AddCommand(entriesCreateCmd)
	entriesCmd.AddCommand(entriesExportCmd)
	entriesCmd.AddCommand(entriesImportCmd)

	entriesCreateCmd.Flags().StringVar(&entryTitle, "title", domain.DEFAULT_DEVICE_TITLE, "Device title")
	entriesCreateCmd.Flags().StringVar(&entryManufacturer, "manufacturer", domain.DEFAULT_DEVICE_MANUFACTURE, "Device manufacturer")
	entriesCreateCmd.Flags().StringVar(&entryModel, "model", "", "Device model")
	entriesExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to file instead of stdout")
}

// withServices opens config, logger and storage for an offline command.
func withServices(fn func(ctx context.Context, svc *services) error) error {
	cfg, err := initConfig()
	if err != nil {
		return fmt.Errorf("config errors: %w", err)
	}
	logger := buildLogger(cfg)
	defer logger.Sync()

	ctx := context.Background()
	svc, err := openServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(ctx, svc)
}

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List the available plugins",
	Long: `List every plugin found in the override and built-in directories.

A plugin in the override directory hides the built-in plugin of the same name.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			plugins, err := svc.loader.Catalog()
			if err != nil {
				return fmt.Errorf("failed to list plugins: %w", err)
			}
			if len(plugins) == 0 {
				fmt.Println("No plugins found.")
				fmt.Printf("  override: %s\n  builtin:  %s\n", svc.loader.OverrideDir(), svc.loader.BuiltinDir())
				return nil
			}
			for _, p := range plugins {
				fmt.Printf("%-16s %-24s [%s]\n", p.Name, p.Title, strings.Join(p.Platforms, ", "))
			}
			return nil
		})
	},
}

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "Manage configured devices",
	Long: `Inspect, create, export and import device entries in the database.

Changes made here are picked up by a running service on its next reload.`,
}

var entriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List device entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			entries, err := svc.store.ListEntries(ctx)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No entries.")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  %s\n", e.EntryId, e.Title)
				for _, rec := range e.Data.Entities {
					fmt.Printf("   %-8s %-16s %s\n", rec.Platform, rec.Module, rec.FriendlyName)
				}
			}
			return nil
		})
	},
}

var entriesCreateCmd = &cobra.Command{
	Use:     "create",
	Short:   "Create an empty device entry",
	Example: `  virtdev entries create --title "Garage" --manufacturer ACME`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			entry, err := svc.store.CreateEntry(ctx, entryTitle, domain.EntryData{
				Manufacturer: entryManufacturer,
				Model:        entryModel,
				Entities:     []domain.EntityRecord{},
			})
			if err != nil {
				return fmt.Errorf("failed to create entry: %w", err)
			}
			fmt.Println(entry.EntryId)
			return nil
		})
	},
}

var entriesExportCmd = &cobra.Command{
	Use:   "export <entry_id>",
	Short: "Export a device entry as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(ctx context.Context, svc *services) error {
			entry, err := svc.store.GetEntry(ctx, args[0])
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(entry)
			if err != nil {
				return err
			}
			if exportOutput == "" {
				_, err = os.Stdout.Write(out)
				return err
			}
			return os.WriteFile(exportOutput, out, 0o640)
		})
	},
}

var entriesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import device entries from YAML",
	Long: `Import one entry, or a list of entries, from a YAML file.

Entries keep their entry_id; a missing entry_id gets a new one.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		entries, err := decodeEntries(raw)
		if err != nil {
			return fmt.Errorf("invalid entries file: %w", err)
		}
		return withServices(func(ctx context.Context, svc *services) error {
			for _, e := range entries {
				saved, err := svc.store.ImportEntry(ctx, e)
				if err != nil {
					return fmt.Errorf("importing %q: %w", e.Title, err)
				}
				svc.logger.Info("main: entry imported", zap.String("entry_id", saved.EntryId), zap.Int("entities", len(saved.Data.Entities)))
				fmt.Println(saved.EntryId)
			}
			return nil
		})
	},
}

// decodeEntries accepts a single entry document or a sequence of them.
func decodeEntries(raw []byte) ([]domain.DeviceEntry, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	doc := node.Content[0]
	if doc.Kind == yaml.SequenceNode {
		var list []domain.DeviceEntry
		if err := doc.Decode(&list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var one domain.DeviceEntry
	if err := doc.Decode(&one); err != nil {
		return nil, err
	}
	return []domain.DeviceEntry{one}, nil
}
