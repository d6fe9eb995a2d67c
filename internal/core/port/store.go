package port

import (
	"context"

	"github.com/berfenger/virtualdevices/internal/core/domain"
)

type EntryStore interface {
	CreateEntry(ctx context.Context, title string, data domain.EntryData) (*domain.DeviceEntry, error)
	GetEntry(ctx context.Context, entryId string) (*domain.DeviceEntry, error)
	ListEntries(ctx context.Context) ([]domain.DeviceEntry, error)
	UpdateEntryData(ctx context.Context, entryId string, data domain.EntryData) error
	DeleteEntry(ctx context.Context, entryId string) error
}

// EntryReloader tears down and rebuilds the live entities of an entry.
type EntryReloader interface {
	ReloadEntry(ctx context.Context, entryId string) error
}
