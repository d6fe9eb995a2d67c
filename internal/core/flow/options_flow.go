package flow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/berfenger/virtualdevices/internal/core/domain"
	"github.com/berfenger/virtualdevices/internal/core/port"
	"github.com/berfenger/virtualdevices/internal/core/schema"

	"go.uber.org/zap"
)

const (
	FIELD_MODULE        = "module"
	FIELD_COUNT         = "count"
	FIELD_ID            = "id"
	FIELD_FRIENDLY_NAME = "friendly_name"
	FIELD_DEVICE_CLASS  = "device_class"
	FIELD_MANUFACTURER  = "manufacturer"
	FIELD_MODEL         = "model"

	MAX_BATCH_COUNT = 100
)

type Deps struct {
	Store    port.EntryStore
	Reloader port.EntryReloader
	Catalog  port.PluginCatalog
	Classes  port.DeviceClassProvider
	Logger   *zap.Logger
}

type stepFunc func(ctx context.Context, input map[string]any) (*Result, error)

// OptionsFlow edits the entity list of one device entry. Changes are made on
// a working copy and persisted only on commit.
type OptionsFlow struct {
	deps    Deps
	entryId string
	title   string
	data    domain.EntryData

	entity *domain.EntityRecord
	index  int
	count  int

	step   string
	fields []schema.Field
	logger *zap.Logger
}

func NewOptionsFlow(ctx context.Context, deps Deps, entryId string) (*OptionsFlow, error) {
	entry, err := deps.Store.GetEntry(ctx, entryId)
	if err != nil {
		return nil, err
	}
	return &OptionsFlow{
		deps:    deps,
		entryId: entry.EntryId,
		title:   entry.Title,
		data:    entry.Data.Clone(),
		index:   1,
		count:   1,
		logger:  deps.Logger.With(zap.String("flow", "options"), zap.String("entry", entry.EntryId)),
	}, nil
}

func (f *OptionsFlow) Start(ctx context.Context) (*Result, error) {
	return f.stepInit(ctx, nil)
}

func (f *OptionsFlow) Submit(ctx context.Context, input map[string]any) (*Result, error) {
	if input == nil {
		input = map[string]any{}
	}
	step, ok := f.steps()[f.step]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStep, f.step)
	}
	return step(ctx, input)
}

func (f *OptionsFlow) steps() map[string]stepFunc {
	return map[string]stepFunc{
		STEP_INIT:          f.stepInit,
		STEP_ENTITY_ADD:    f.stepEntityAdd,
		STEP_ENTITY_COPY:   f.stepEntityCopy,
		STEP_ENTITY_EDIT:   f.stepEntityEdit,
		STEP_ENTITY_REMOVE: f.stepEntityRemove,
		STEP_ENTITY_EDITOR: f.stepEntityEditor,
	}
}

func (f *OptionsFlow) form(stepId string, fields []schema.Field, errs map[string]string) *Result {
	f.step = stepId
	f.fields = fields
	return showForm(stepId, fields, errs)
}

func (f *OptionsFlow) stepInit(ctx context.Context, input map[string]any) (*Result, error) {
	if len(f.data.Entities) == 0 {
		return f.stepEntityAdd(ctx, nil)
	}
	if input == nil {
		f.step = STEP_INIT
		f.fields = nil
		return showMenu(STEP_INIT, DeviceOptionsMenu), nil
	}

	next, _ := input[MENU_SELECTION].(string)
	for _, option := range DeviceOptionsMenu {
		if option == next {
			return f.steps()[next](ctx, nil)
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStep, next)
}

func countField() schema.Field {
	min, max := schema.Bounds(1, MAX_BATCH_COUNT)
	return schema.Field{Name: FIELD_COUNT, Kind: schema.KindNumber, Label: "Count", Required: true, Default: 1.0, Min: min, Max: max, Integer: true}
}

func (f *OptionsFlow) moduleOptions() ([]schema.Option, error) {
	infos, err := f.deps.Catalog.Catalog()
	if err != nil {
		return nil, err
	}
	var opts []schema.Option
	for _, info := range infos {
		for _, platform := range info.Platforms {
			if !supportedPlatform(platform) {
				continue
			}
			opts = append(opts, schema.Option{
				Value: info.Name + "." + platform,
				Label: fmt.Sprintf("%s (%s)", info.Title, titleCase(platform)),
			})
		}
	}
	return opts, nil
}

func supportedPlatform(platform string) bool {
	for _, p := range domain.SupportedPlatforms {
		if p == platform {
			return true
		}
	}
	return false
}

func (f *OptionsFlow) entityOptions() []schema.Option {
	opts := make([]schema.Option, 0, len(f.data.Entities))
	for _, e := range f.data.Entities {
		opts = append(opts, schema.Option{
			Value: e.Id,
			Label: fmt.Sprintf("%s (%s)", e.FriendlyName, titleCase(e.Platform)),
		})
	}
	return opts
}

func (f *OptionsFlow) stepEntityAdd(ctx context.Context, input map[string]any) (*Result, error) {
	if input == nil {
		opts, err := f.moduleOptions()
		if err != nil {
			return nil, err
		}
		return f.form(STEP_ENTITY_ADD, []schema.Field{
			{Name: FIELD_MODULE, Kind: schema.KindSelect, Label: "Module", Required: true, Options: opts},
			countField(),
		}, nil), nil
	}

	values, errs := schema.Validate(f.fields, input)
	if len(errs) > 0 {
		return f.form(STEP_ENTITY_ADD, f.fields, errs), nil
	}
	module, platform, _ := strings.Cut(values[FIELD_MODULE].(string), ".")
	rec := domain.NewEntityRecord(module, platform)
	f.entity = &rec
	f.index = 1
	f.count, _ = schema.Int(values, FIELD_COUNT)
	return f.stepEntityEditor(ctx, nil)
}

func (f *OptionsFlow) stepEntityCopy(ctx context.Context, input map[string]any) (*Result, error) {
	if input == nil {
		return f.form(STEP_ENTITY_COPY, []schema.Field{
			{Name: FIELD_ID, Kind: schema.KindSelect, Label: "Entity", Required: true, Options: f.entityOptions()},
			countField(),
		}, nil), nil
	}

	values, errs := schema.Validate(f.fields, input)
	src, found := f.data.FindEntity(fmt.Sprint(values[FIELD_ID]))
	if len(errs) > 0 || !found {
		if len(errs) == 0 {
			errs[FIELD_ID] = schema.ERROR_INVALID_OPTION
		}
		return f.form(STEP_ENTITY_COPY, f.fields, errs), nil
	}
	rec := src.Clone()
	rec.Id = domain.NewRecordId()
	f.entity = &rec
	f.index = 1
	f.count, _ = schema.Int(values, FIELD_COUNT)
	return f.stepEntityEditor(ctx, nil)
}

func (f *OptionsFlow) stepEntityEdit(ctx context.Context, input map[string]any) (*Result, error) {
	if input == nil {
		return f.form(STEP_ENTITY_EDIT, []schema.Field{
			{Name: FIELD_ID, Kind: schema.KindSelect, Label: "Entity", Required: true, Options: f.entityOptions()},
		}, nil), nil
	}

	values, errs := schema.Validate(f.fields, input)
	rec, found := f.data.FindEntity(fmt.Sprint(values[FIELD_ID]))
	if len(errs) > 0 || !found {
		if len(errs) == 0 {
			errs[FIELD_ID] = schema.ERROR_INVALID_OPTION
		}
		return f.form(STEP_ENTITY_EDIT, f.fields, errs), nil
	}
	f.entity = &rec
	f.index = 1
	f.count = 1
	return f.stepEntityEditor(ctx, nil)
}

func (f *OptionsFlow) stepEntityRemove(ctx context.Context, input map[string]any) (*Result, error) {
	if input == nil {
		return f.form(STEP_ENTITY_REMOVE, []schema.Field{
			{Name: FIELD_ID, Kind: schema.KindSelect, Label: "Entity", Required: true, Options: f.entityOptions()},
		}, nil), nil
	}

	values, errs := schema.Validate(f.fields, input)
	if len(errs) > 0 || !f.data.RemoveEntity(fmt.Sprint(values[FIELD_ID])) {
		if len(errs) == 0 {
			errs[FIELD_ID] = schema.ERROR_INVALID_OPTION
		}
		return f.form(STEP_ENTITY_REMOVE, f.fields, errs), nil
	}
	return f.commit(ctx)
}

func (f *OptionsFlow) editorFields() ([]schema.Field, error) {
	rec := f.entity
	fields := []schema.Field{
		{Name: FIELD_FRIENDLY_NAME, Kind: schema.KindString, Label: "Name", Required: true, Default: rec.FriendlyName},
	}

	classes := f.deps.Classes.DeviceClasses(rec.Platform)
	if len(classes) > 0 {
		opts := []schema.Option{{Value: domain.DEVICE_CLASS_NONE, Label: domain.DEVICE_CLASS_NONE}}
		for _, c := range classes {
			opts = append(opts, schema.Option{Value: c, Label: titleCase(c)})
		}
		current := rec.DeviceClass
		if current == "" {
			current = domain.DEVICE_CLASS_NONE
		}
		fields = append(fields, schema.Field{
			Name: FIELD_DEVICE_CLASS, Kind: schema.KindSelect, Label: "Device class",
			Required: true, Default: current, Options: opts,
		})
	}

	pluginFields, err := f.deps.Catalog.Schema(rec.Module, rec.Platform)
	if err != nil {
		return nil, err
	}
	return mergeFields(fields, schema.WithDefaults(pluginFields, rec.Data)), nil
}

// mergeFields appends the fields of extra whose names are not already taken.
func mergeFields(base, extra []schema.Field) []schema.Field {
	taken := make(map[string]bool, len(base))
	for _, f := range base {
		taken[f.Name] = true
	}
	out := append([]schema.Field(nil), base...)
	for _, f := range extra {
		if taken[f.Name] {
			continue
		}
		taken[f.Name] = true
		out = append(out, f)
	}
	return out
}

func (f *OptionsFlow) editorForm(errs map[string]string) *Result {
	r := f.form(STEP_ENTITY_EDITOR, f.fields, errs)
	module := f.entity.Module
	if info, err := f.deps.Catalog.Plugin(f.entity.Module); err == nil {
		module = info.Title
	}
	r.Placeholders = map[string]string{
		"entity_index": strconv.Itoa(f.index),
		"entity_count": strconv.Itoa(f.count),
		"module":       fmt.Sprintf("%s (%s)", module, titleCase(f.entity.Platform)),
	}
	r.LastStep = f.index == f.count
	return r
}

func (f *OptionsFlow) stepEntityEditor(ctx context.Context, input map[string]any) (*Result, error) {
	if f.entity == nil {
		return nil, fmt.Errorf("%w: %s without entity", ErrUnknownStep, STEP_ENTITY_EDITOR)
	}
	if input == nil {
		fields, err := f.editorFields()
		if err != nil {
			f.logger.Warn("flow: cannot load plugin schema",
				zap.String("module", f.entity.Module), zap.Error(err))
			return abort("plugin_unavailable"), nil
		}
		f.step = STEP_ENTITY_EDITOR
		f.fields = fields
		return f.editorForm(nil), nil
	}

	values, errs := schema.Validate(f.fields, input)
	if len(errs) > 0 {
		return f.editorForm(errs), nil
	}

	rec := f.entity
	rec.FriendlyName = values[FIELD_FRIENDLY_NAME].(string)
	delete(values, FIELD_FRIENDLY_NAME)
	if dc, ok := values[FIELD_DEVICE_CLASS].(string); ok {
		rec.DeviceClass = dc
		delete(values, FIELD_DEVICE_CLASS)
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	for k, v := range values {
		rec.Data[k] = v
	}
	f.data.UpsertEntity(rec.Clone())

	if f.index < f.count {
		next := rec.Clone()
		next.Id = domain.NewRecordId()
		f.entity = &next
		f.index++
		return f.stepEntityEditor(ctx, nil)
	}
	return f.commit(ctx)
}

func (f *OptionsFlow) commit(ctx context.Context) (*Result, error) {
	if err := f.deps.Store.UpdateEntryData(ctx, f.entryId, f.data); err != nil {
		return nil, err
	}
	if err := f.deps.Reloader.ReloadEntry(ctx, f.entryId); err != nil {
		f.logger.Error("flow: entry reload failed", zap.Error(err))
	}
	f.logger.Info("flow: entry updated", zap.Int("entities", len(f.data.Entities)))
	data := f.data.Clone()
	return &Result{Type: RESULT_CREATE_ENTRY, Title: f.title, EntryId: f.entryId, Data: &data}, nil
}
