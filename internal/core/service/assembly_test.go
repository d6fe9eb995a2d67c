package service

import (
	"context"
	"errors"
	"testing"

	"github.com/berfenger/virtualdevices/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEntry(records ...domain.EntityRecord) domain.DeviceEntry {
	return domain.DeviceEntry{
		EntryId: "entry1",
		Title:   "Garage",
		Data: domain.EntryData{
			Manufacturer: "ACME",
			Model:        "Door",
			Entities:     records,
		},
	}
}

func newTestAssembler() (*Assembler, *TestFactory) {
	factory := NewTestFactory()
	factory.Platforms["gpio"] = []string{domain.PLATFORM_SWITCH}
	factory.Platforms["gpio_pulse"] = []string{domain.PLATFORM_BUTTON}
	return NewAssembler(factory, "1.2.3", zap.NewNop()), factory
}

func TestAssembleAppliesAttributes(t *testing.T) {
	assert := assert.New(t)

	a, _ := newTestAssembler()
	rec := domain.NewEntityRecord("gpio", domain.PLATFORM_SWITCH)
	rec.FriendlyName = "Door relay"
	rec.DeviceClass = "outlet"
	rec.Data["gpioline"] = "4"
	noName := domain.NewEntityRecord("gpio", domain.PLATFORM_SWITCH)
	noName.FriendlyName = ""

	hosted := a.Assemble(context.Background(), testEntry(rec, noName), domain.PLATFORM_SWITCH)
	require.Len(t, hosted, 2)

	d := hosted[0].Description
	assert.Equal("switch."+rec.Id, d.UniqueId)
	assert.Equal("Door relay", d.Name)
	require.NotNil(t, d.DeviceClass)
	assert.Equal("outlet", *d.DeviceClass)
	assert.Equal(domain.Device{Id: "entry1", Name: "Garage", Version: "1.2.3", Model: "Door", Manufacturer: "ACME"}, d.Device)
	assert.Equal("4", hosted[0].Entity.(*TestEntity).Data["gpioline"])

	d = hosted[1].Description
	assert.Equal("Garage", d.Name, "falls back to device title")
	assert.Nil(d.DeviceClass, "sentinel maps to none")
}

func TestAssembleFiltersPlatform(t *testing.T) {
	a, _ := newTestAssembler()
	sw := domain.NewEntityRecord("gpio", domain.PLATFORM_SWITCH)
	btn := domain.NewEntityRecord("gpio_pulse", domain.PLATFORM_BUTTON)

	hosted := a.Assemble(context.Background(), testEntry(sw, btn), domain.PLATFORM_BUTTON)
	require.Len(t, hosted, 1)
	assert.Equal(t, "button."+btn.Id, hosted[0].Description.UniqueId)
}

func TestAssembleSkipsFailures(t *testing.T) {
	assert := assert.New(t)

	a, factory := newTestAssembler()
	factory.Broken["broken"] = errors.New("syntax error")

	records := []domain.EntityRecord{
		domain.NewEntityRecord("missing", domain.PLATFORM_SWITCH),
		domain.NewEntityRecord("broken", domain.PLATFORM_SWITCH),
		domain.NewEntityRecord("gpio_pulse", domain.PLATFORM_SWITCH),
		domain.NewEntityRecord("gpio", domain.PLATFORM_SWITCH),
	}
	hosted := a.Assemble(context.Background(), testEntry(records...), domain.PLATFORM_SWITCH)
	require.Len(t, hosted, 1)
	assert.Equal("switch."+records[3].Id, hosted[0].Description.UniqueId)

	hosted = a.Assemble(context.Background(), testEntry(records[:3]...), domain.PLATFORM_SWITCH)
	assert.NotNil(hosted)
	assert.Empty(hosted, "empty result is valid")
}

func TestAssembleUniqueIdsDistinct(t *testing.T) {
	assert := assert.New(t)

	a, factory := newTestAssembler()
	rec := domain.NewEntityRecord("gpio", domain.PLATFORM_SWITCH)
	byName := domain.NewEntityRecord("gpio", domain.PLATFORM_SWITCH)
	byName.Id = ""
	byName.FriendlyName = "Pump"
	sameName := byName.Clone()

	records := []domain.EntityRecord{rec, rec.Clone(), byName, sameName}
	for i := 0; i < 5; i++ {
		records = append(records, domain.NewEntityRecord("gpio", domain.PLATFORM_SWITCH))
	}

	hosted := a.Assemble(context.Background(), testEntry(records...), domain.PLATFORM_SWITCH)
	assert.Len(hosted, 7)
	assert.LessOrEqual(len(hosted), len(records))

	ids := make(map[string]bool)
	for _, h := range hosted {
		assert.False(ids[h.Description.UniqueId], "duplicate %s", h.Description.UniqueId)
		ids[h.Description.UniqueId] = true
	}
	assert.True(ids["switch.Pump"])

	closed := 0
	for _, e := range factory.Built {
		if e.Closed() {
			closed++
		}
	}
	assert.Equal(2, closed, "skipped duplicates are closed")
}
