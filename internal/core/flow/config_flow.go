package flow

import (
	"context"
	"fmt"

	"github.com/berfenger/virtualdevices/internal/core/domain"
	"github.com/berfenger/virtualdevices/internal/core/schema"

	"go.uber.org/zap"
)

// ConfigFlow creates a new device entry with an empty entity list.
type ConfigFlow struct {
	deps   Deps
	fields []schema.Field
	done   bool
}

func NewConfigFlow(deps Deps) *ConfigFlow {
	return &ConfigFlow{deps: deps}
}

func (f *ConfigFlow) Start(ctx context.Context) (*Result, error) {
	f.fields = []schema.Field{
		{Name: FIELD_FRIENDLY_NAME, Kind: schema.KindString, Label: "Device name", Required: true, Default: domain.DEFAULT_DEVICE_TITLE},
		{Name: FIELD_MANUFACTURER, Kind: schema.KindString, Label: "Manufacturer", Required: true, Default: domain.DEFAULT_DEVICE_MANUFACTURE},
		{Name: FIELD_MODEL, Kind: schema.KindString, Label: "Model", Default: ""},
	}
	return showForm(STEP_USER, f.fields, nil), nil
}

func (f *ConfigFlow) Submit(ctx context.Context, input map[string]any) (*Result, error) {
	if f.fields == nil || f.done {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStep, STEP_USER)
	}
	values, errs := schema.Validate(f.fields, input)
	if len(errs) > 0 {
		return showForm(STEP_USER, f.fields, errs), nil
	}

	title := values[FIELD_FRIENDLY_NAME].(string)
	model, _ := values[FIELD_MODEL].(string)
	entry, err := f.deps.Store.CreateEntry(ctx, title, domain.EntryData{
		Manufacturer: values[FIELD_MANUFACTURER].(string),
		Model:        model,
		Entities:     []domain.EntityRecord{},
	})
	if err != nil {
		return nil, err
	}
	f.done = true

	if err := f.deps.Reloader.ReloadEntry(ctx, entry.EntryId); err != nil {
		f.deps.Logger.Error("flow: entry setup failed", zap.String("entry", entry.EntryId), zap.Error(err))
	}
	f.deps.Logger.Info("flow: entry created", zap.String("entry", entry.EntryId), zap.String("title", title))
	return &Result{Type: RESULT_CREATE_ENTRY, Title: entry.Title, EntryId: entry.EntryId, Data: &entry.Data}, nil
}
