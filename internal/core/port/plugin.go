package port

import (
	"context"

	"github.com/berfenger/virtualdevices/internal/core/domain"
	"github.com/berfenger/virtualdevices/internal/core/schema"
)

type DeviceClassProvider interface {
	DeviceClasses(platform string) []string
}

type PluginCatalog interface {
	Catalog() ([]domain.PluginInfo, error)
	Plugin(name string) (domain.PluginInfo, error)
	Schema(module, platform string) ([]schema.Field, error)
}

type EntityFactory interface {
	Construct(ctx context.Context, module, platform string, data map[string]any) (Entity, error)
}

// Entity is a live plugin-backed entity. Methods the plugin does not define
// are no-ops.
type Entity interface {
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
	Press(ctx context.Context) error
	Update(ctx context.Context) error
	Added(ctx context.Context) error
	WillRemove(ctx context.Context) error
	IsOn() (bool, bool)
	Close()
}
