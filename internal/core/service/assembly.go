package service

import (
	"context"
	"fmt"

	"github.com/berfenger/virtualdevices/internal/core/domain"
	"github.com/berfenger/virtualdevices/internal/core/port"

	"go.uber.org/zap"
)

// HostedEntity pairs a live plugin entity with the attributes the host
// applied to it.
type HostedEntity struct {
	Description domain.EntityDescription
	Entity      port.Entity
}

type Assembler struct {
	factory port.EntityFactory
	version string
	logger  *zap.Logger
}

func NewAssembler(factory port.EntityFactory, version string, logger *zap.Logger) *Assembler {
	return &Assembler{
		factory: factory,
		version: version,
		logger:  logger.With(zap.String("component", "assembly")),
	}
}

// Assemble constructs one entity per record of entry with the given platform.
// Records that fail to construct are logged and skipped.
func (a *Assembler) Assemble(ctx context.Context, entry domain.DeviceEntry, platform string) []HostedEntity {
	hosted := make([]HostedEntity, 0)
	seen := make(map[string]bool)

	for _, rec := range entry.Data.Entities {
		if rec.Platform != platform {
			continue
		}
		entity, err := a.factory.Construct(ctx, rec.Module, rec.Platform, rec.Data)
		if err != nil {
			a.logger.Error("assembly: cannot construct entity",
				zap.String("device", entry.Title),
				zap.String("module", rec.Module),
				zap.String("platform", platform),
				zap.Error(err))
			continue
		}

		desc := a.Describe(entry, rec)
		if seen[desc.UniqueId] {
			a.logger.Warn("assembly: duplicate unique id, skipping",
				zap.String("device", entry.Title),
				zap.String("unique_id", desc.UniqueId))
			entity.Close()
			continue
		}
		seen[desc.UniqueId] = true
		hosted = append(hosted, HostedEntity{Description: desc, Entity: entity})
	}

	a.logger.Debug("assembly: done",
		zap.String("entry", entry.EntryId),
		zap.String("platform", platform),
		zap.Int("entities", len(hosted)))
	return hosted
}

// Describe applies the plugin independent attributes of rec.
func (a *Assembler) Describe(entry domain.DeviceEntry, rec domain.EntityRecord) domain.EntityDescription {
	name := rec.FriendlyName
	if name == "" {
		name = entry.Title
	}
	var deviceClass *string
	if rec.DeviceClass != "" && rec.DeviceClass != domain.DEVICE_CLASS_NONE {
		dc := rec.DeviceClass
		deviceClass = &dc
	}
	return domain.EntityDescription{
		EntryId:     entry.EntryId,
		RecordId:    rec.Id,
		Module:      rec.Module,
		Platform:    rec.Platform,
		UniqueId:    UniqueId(rec),
		Name:        name,
		DeviceClass: deviceClass,
		Device: domain.Device{
			Id:           entry.EntryId,
			Name:         entry.Title,
			Version:      a.version,
			Model:        entry.Data.Model,
			Manufacturer: entry.Data.Manufacturer,
		},
	}
}

func UniqueId(rec domain.EntityRecord) string {
	if rec.Id != "" {
		return fmt.Sprintf("%s.%s", rec.Platform, rec.Id)
	}
	return fmt.Sprintf("%s.%s", rec.Platform, rec.FriendlyName)
}
