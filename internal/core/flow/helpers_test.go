package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/berfenger/virtualdevices/internal/core/domain"
	"github.com/berfenger/virtualdevices/internal/core/schema"

	"go.uber.org/zap"
)

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]domain.DeviceEntry
	updates int
}

func newMemoryStore(entries ...domain.DeviceEntry) *memoryStore {
	s := &memoryStore{entries: make(map[string]domain.DeviceEntry)}
	for _, e := range entries {
		s.entries[e.EntryId] = e
	}
	return s
}

func (s *memoryStore) CreateEntry(ctx context.Context, title string, data domain.EntryData) (*domain.DeviceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := domain.DeviceEntry{EntryId: fmt.Sprintf("entry%d", len(s.entries)+1), Title: title, Data: data.Clone()}
	s.entries[e.EntryId] = e
	return &e, nil
}

func (s *memoryStore) GetEntry(ctx context.Context, entryId string) (*domain.DeviceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryId]
	if !ok {
		return nil, errors.New("entry not found")
	}
	e.Data = e.Data.Clone()
	return &e, nil
}

func (s *memoryStore) ListEntries(ctx context.Context) ([]domain.DeviceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DeviceEntry
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out, nil
}

func (s *memoryStore) UpdateEntryData(ctx context.Context, entryId string, data domain.EntryData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryId]
	if !ok {
		return errors.New("entry not found")
	}
	e.Data = data.Clone()
	s.entries[entryId] = e
	s.updates++
	return nil
}

func (s *memoryStore) DeleteEntry(ctx context.Context, entryId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, entryId)
	return nil
}

func (s *memoryStore) entities(entryId string) []domain.EntityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[entryId].Data.Entities
}

type recordingReloader struct {
	reloads []string
}

func (r *recordingReloader) ReloadEntry(ctx context.Context, entryId string) error {
	r.reloads = append(r.reloads, entryId)
	return nil
}

type staticCatalog struct {
	plugins []domain.PluginInfo
	schemas map[string][]schema.Field
}

func (c *staticCatalog) Catalog() ([]domain.PluginInfo, error) {
	return c.plugins, nil
}

func (c *staticCatalog) Plugin(name string) (domain.PluginInfo, error) {
	for _, p := range c.plugins {
		if p.Name == name {
			return p, nil
		}
	}
	return domain.PluginInfo{}, errors.New("plugin not found")
}

func (c *staticCatalog) Schema(module, platform string) ([]schema.Field, error) {
	if _, err := c.Plugin(module); err != nil {
		return nil, err
	}
	return c.schemas[module+"."+platform], nil
}

func testCatalog() *staticCatalog {
	min, max := schema.Bounds(1, 100)
	return &staticCatalog{
		plugins: []domain.PluginInfo{
			{Name: "gpio", Title: "Linux GPIO Access", Platforms: []string{"switch"}},
			{Name: "gpio_pulse", Title: "Linux GPIO Pulse Train", Platforms: []string{"button", "sensor"}},
		},
		schemas: map[string][]schema.Field{
			"gpio.switch": {
				{Name: "gpio_info", Kind: schema.KindConstant, Label: "info"},
				{Name: "gpiochip", Kind: schema.KindSelect, Required: true, Options: schema.StringOptions("gpiochip0", "gpiochip1")},
				{Name: "gpioline", Kind: schema.KindSelect, Required: true, Options: schema.StringOptions("0", "1", "2", "17"), Default: "0"},
			},
			"gpio_pulse.button": {
				{Name: "pulses", Kind: schema.KindString, Required: true, Default: "1000,-1000"},
				{Name: "repeat_count", Kind: schema.KindNumber, Default: 1.0, Min: min, Max: max},
			},
		},
	}
}

type testEnv struct {
	store    *memoryStore
	reloader *recordingReloader
	catalog  *staticCatalog
	deps     Deps
}

func newTestEnv(entries ...domain.DeviceEntry) *testEnv {
	env := &testEnv{
		store:    newMemoryStore(entries...),
		reloader: &recordingReloader{},
		catalog:  testCatalog(),
	}
	env.deps = Deps{
		Store:    env.store,
		Reloader: env.reloader,
		Catalog:  env.catalog,
		Classes:  domain.StaticDeviceClasses{},
		Logger:   zap.NewNop(),
	}
	return env
}

func emptyEntry() domain.DeviceEntry {
	return domain.DeviceEntry{
		EntryId: "dev1",
		Title:   "Garage",
		Data:    domain.EntryData{Manufacturer: "ACME", Model: "M1", Entities: []domain.EntityRecord{}},
	}
}

func entryWith(records ...domain.EntityRecord) domain.DeviceEntry {
	e := emptyEntry()
	e.Data.Entities = records
	return e
}
