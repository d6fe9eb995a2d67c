package flow

import (
	"context"
	"testing"

	"github.com/berfenger/virtualdevices/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFlowCreatesEntry(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	env := newTestEnv()
	m := NewManager(env.deps)

	res, err := m.StartConfigFlow(ctx)
	require.NoError(t, err)
	assert.Equal(RESULT_FORM, res.Type)
	assert.Equal(STEP_USER, res.StepId)
	assert.Equal(HANDLER_CONFIG, res.Handler)
	assert.Equal(domain.DEFAULT_DEVICE_TITLE, res.Schema[0].Default)
	assert.Equal(1, m.InProgress())

	res2, err := m.Configure(ctx, res.FlowId, map[string]any{"manufacturer": ""})
	require.NoError(t, err)
	assert.Equal(RESULT_FORM, res2.Type)
	assert.Equal("required", res2.Errors["manufacturer"])

	res2, err = m.Configure(ctx, res.FlowId, map[string]any{"friendly_name": "Shed"})
	require.NoError(t, err)
	require.Equal(t, RESULT_CREATE_ENTRY, res2.Type)
	assert.Equal("Shed", res2.Title)
	assert.Equal(domain.DEFAULT_DEVICE_MANUFACTURE, res2.Data.Manufacturer)
	assert.Empty(res2.Data.Entities)
	assert.Equal([]string{res2.EntryId}, env.reloader.reloads)
	assert.Equal(0, m.InProgress(), "finished flow forgotten")

	_, err = m.Configure(ctx, res.FlowId, map[string]any{})
	assert.ErrorIs(err, ErrFlowNotFound)
}

func TestManagerOptionsFlow(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	env := newTestEnv(entryWith(gpioRecord("a1")))
	m := NewManager(env.deps)

	_, err := m.StartOptionsFlow(ctx, "missing")
	assert.Error(err)

	res, err := m.StartOptionsFlow(ctx, "dev1")
	require.NoError(t, err)
	assert.Equal(RESULT_MENU, res.Type)
	assert.Equal(HANDLER_OPTIONS, res.Handler)

	other, err := m.StartOptionsFlow(ctx, "dev1")
	require.NoError(t, err)
	assert.NotEqual(res.FlowId, other.FlowId)
	assert.Equal(2, m.InProgress())

	require.NoError(t, m.Abort(other.FlowId))
	assert.ErrorIs(m.Abort(other.FlowId), ErrFlowNotFound)

	res, err = m.Configure(ctx, res.FlowId, map[string]any{MENU_SELECTION: STEP_ENTITY_REMOVE})
	require.NoError(t, err)
	res, err = m.Configure(ctx, res.FlowId, map[string]any{FIELD_ID: "a1"})
	require.NoError(t, err)
	assert.Equal(RESULT_CREATE_ENTRY, res.Type)
	assert.Empty(env.store.entities("dev1"))
	assert.Equal(0, m.InProgress())
}
