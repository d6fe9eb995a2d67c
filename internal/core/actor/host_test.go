package actor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	adactor "github.com/berfenger/virtualdevices/internal/adapter/actor"
	"github.com/berfenger/virtualdevices/internal/core/domain"
	"github.com/berfenger/virtualdevices/internal/core/port"
	"github.com/berfenger/virtualdevices/internal/core/service"
	"github.com/berfenger/virtualdevices/internal/plugin"
	"github.com/berfenger/virtualdevices/internal/storage"
	"github.com/berfenger/virtualdevices/internal/util"
	"github.com/berfenger/virtualdevices/pkg/gpioline"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type hostEnv struct {
	t         *testing.T
	system    *actor.ActorSystem
	store     *storage.SQLiteEntryStore
	factory   *service.TestFactory
	recording *adactor.RegistrarRecording
	client    *HostClient
	pid       *actor.PID
}

func newHostEnv(t *testing.T, entries ...domain.DeviceEntry) *hostEnv {
	factory := service.NewTestFactory()
	factory.Platforms["relay"] = []string{domain.PLATFORM_SWITCH}
	factory.Platforms["bell"] = []string{domain.PLATFORM_BUTTON}
	env := newHostEnvWithFactory(t, factory, entries...)
	env.factory = factory
	return env
}

func newHostEnvWithFactory(t *testing.T, factory port.EntityFactory, entries ...domain.DeviceEntry) *hostEnv {
	ctx := context.Background()
	cfg := util.LoadTestConfig(t.TempDir())
	logger := zap.Must(zap.NewDevelopment())

	db, err := storage.Open(ctx, storage.MEMORY_PATH, logger)
	require.NoError(t, err)
	store := storage.NewSQLiteEntryStore(db)
	for _, e := range entries {
		_, err := store.ImportEntry(ctx, e)
		require.NoError(t, err)
	}

	assembler := service.NewAssembler(factory, "test", logger)

	env := &hostEnv{
		t:         t,
		system:    actor.NewActorSystem(),
		store:     store,
		recording: &adactor.RegistrarRecording{},
	}
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewHostActor(store, assembler, func() actor.Actor {
			return adactor.NewTestMQTTActor(&cfg, env.recording, logger)
		}, logger).WithCommandTimeout(2 * time.Second)
	})
	env.pid, err = env.system.Root.SpawnNamed(props, domain.ACTOR_ID_HOST)
	require.NoError(t, err)
	env.client = NewHostClient(env.system.Root, env.pid)

	t.Cleanup(func() {
		env.system.Root.Stop(env.pid)
		env.system.Shutdown()
		db.Close()
	})
	return env
}

func (env *hostEnv) waitRegistered(n int) {
	require.Eventually(env.t, func() bool { return len(env.recording.Registered()) == n }, 2*time.Second, 20*time.Millisecond)
}

func (env *hostEnv) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	env.t.Cleanup(cancel)
	return ctx
}

func (env *hostEnv) entities() []domain.EntityStatus {
	list, err := env.client.Entities(env.ctx())
	require.NoError(env.t, err)
	return list
}

func (env *hostEnv) built(module string) []*service.TestEntity {
	out := make([]*service.TestEntity, 0)
	for _, e := range env.factory.Entities() {
		if e.Module == module {
			out = append(out, e)
		}
	}
	return out
}

func testEntry() (domain.DeviceEntry, domain.EntityRecord, domain.EntityRecord) {
	relay := domain.NewEntityRecord("relay", domain.PLATFORM_SWITCH)
	relay.FriendlyName = "Pump"
	bell := domain.NewEntityRecord("bell", domain.PLATFORM_BUTTON)
	ghost := domain.NewEntityRecord("ghost", domain.PLATFORM_SWITCH)
	entry := domain.DeviceEntry{
		EntryId: "e1",
		Title:   "Garage",
		Data: domain.EntryData{
			Manufacturer: "ACME",
			Entities:     []domain.EntityRecord{relay, bell, ghost},
		},
	}
	return entry, relay, bell
}

func TestHostSetupAndCommands(t *testing.T) {
	assert := assert.New(t)

	entry, relay, bell := testEntry()
	env := newHostEnv(t, entry)

	relayId := service.UniqueId(relay)
	bellId := service.UniqueId(bell)

	list := env.entities()
	require.Len(t, list, 2, "broken record skipped")
	assert.ElementsMatch([]string{relayId, bellId}, []string{list[0].UniqueId, list[1].UniqueId})

	env.waitRegistered(2)

	resp, err := env.client.Command(env.ctx(), relayId, domain.COMMAND_TURN_ON)
	require.NoError(t, err)
	require.NotNil(t, resp.IsOn)
	assert.True(*resp.IsOn)
	require.Eventually(t, func() bool {
		on, ok := env.recording.LastState(relayId)
		return ok && on
	}, 2*time.Second, 20*time.Millisecond)

	pump := env.built("relay")[0]
	assert.Equal([]string{"update", "added", "turn_on"}, pump.Calls(), "update before add")

	// a busy line leaves the state unchanged
	pump.SetErr(gpioline.ErrResourceBusy)
	resp, err = env.client.Command(env.ctx(), relayId, domain.COMMAND_TURN_OFF)
	assert.ErrorIs(err, gpioline.ErrResourceBusy)
	require.NotNil(t, resp)
	assert.True(*resp.IsOn)
	pump.SetErr(nil)

	_, err = env.client.Command(env.ctx(), bellId, domain.COMMAND_PRESS)
	assert.NoError(err)
	assert.Contains(env.built("bell")[0].Calls(), "press")

	_, err = env.client.Command(env.ctx(), relayId, domain.COMMAND_PRESS)
	var unsupported domain.UnsupportedCommandError
	assert.True(errors.As(err, &unsupported))

	_, err = env.client.Command(env.ctx(), "switch.nope", domain.COMMAND_TURN_ON)
	var unknown domain.UnknownEntityError
	assert.True(errors.As(err, &unknown))

	healthy, err := env.client.Health(env.ctx())
	assert.NoError(err)
	assert.True(healthy)
}

func TestHostReloadKeepsFailedReplacement(t *testing.T) {
	assert := assert.New(t)

	entry, relay, bell := testEntry()
	env := newHostEnv(t, entry)
	require.Len(t, env.entities(), 2)
	env.waitRegistered(2)

	oldRelay := env.built("relay")[0]
	oldBell := env.built("bell")[0]

	// relay fails to rebuild, bell record is removed, a second relay appears
	env.factory.SetBroken("relay", errors.New("syntax error"))
	second := domain.NewEntityRecord("bell", domain.PLATFORM_BUTTON)
	data := entry.Data.Clone()
	data.RemoveEntity(bell.Id)
	data.UpsertEntity(second)
	require.NoError(t, env.store.UpdateEntryData(env.ctx(), entry.EntryId, data))

	require.NoError(t, env.client.ReloadEntry(env.ctx(), entry.EntryId))

	ids := make([]string, 0)
	for _, s := range env.entities() {
		ids = append(ids, s.UniqueId)
	}
	assert.ElementsMatch([]string{service.UniqueId(relay), service.UniqueId(second)}, ids)

	assert.False(oldRelay.Closed(), "failed replacement keeps previous entity")
	assert.True(oldBell.Closed())
	assert.Contains(oldBell.Calls(), "will_remove")
	require.Eventually(t, func() bool {
		gone := env.recording.Unregistered()
		return len(gone) == 1 && gone[0].UniqueId == service.UniqueId(bell)
	}, 2*time.Second, 20*time.Millisecond)

	// plugin fixed on disk: the entry referencing it is rebuilt
	env.factory.SetBroken("relay", nil)
	env.system.Root.Send(env.pid, domain.PluginChangedEvent{Name: "relay"})
	require.Eventually(t, func() bool { return len(env.built("relay")) == 2 }, 2*time.Second, 20*time.Millisecond)
	require.Eventually(t, oldRelay.Closed, 2*time.Second, 20*time.Millisecond)
	assert.Len(env.entities(), 2)

	// unrelated plugin change does nothing
	before := env.factory.Count()
	env.system.Root.Send(env.pid, domain.PluginChangedEvent{Name: "other"})
	assert.Len(env.entities(), 2)
	assert.Equal(before, env.factory.Count())
}

func TestHostPollAndUnload(t *testing.T) {
	assert := assert.New(t)

	entry, _, _ := testEntry()
	env := newHostEnv(t, entry)
	require.Len(t, env.entities(), 2)

	env.system.Root.Send(env.pid, domain.PollRequest{})
	env.entities()
	pump := env.built("relay")[0]
	updates := 0
	for _, c := range pump.Calls() {
		if c == "update" {
			updates++
		}
	}
	assert.Equal(2, updates)

	require.NoError(t, env.client.UnloadEntry(env.ctx(), entry.EntryId))
	assert.Empty(env.entities())
	for _, e := range env.factory.Entities() {
		assert.True(e.Closed())
	}

	// a deleted entry cannot be set up again
	require.NoError(t, env.store.DeleteEntry(env.ctx(), entry.EntryId))
	err := env.client.ReloadEntry(env.ctx(), entry.EntryId)
	assert.ErrorIs(err, storage.ErrEntryNotFound)
}

func TestHostPublishesBuiltinSwitchStateOnRegistration(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	builtin := filepath.Join(dir, "builtin")
	_, err := plugin.SeedBuiltins(builtin)
	require.NoError(t, err)

	opener := &gpioline.TestOpener{}
	registry := gpioline.NewRegistry(zap.NewNop(), gpioline.WithOpener(opener.Open))
	t.Cleanup(registry.Close)
	loader := plugin.NewLoader(filepath.Join(dir, "plugins"), builtin, zap.NewNop(),
		plugin.LogAPI{},
		plugin.GPIOAPI{Lines: registry},
	)

	rec := domain.NewEntityRecord("gpio", domain.PLATFORM_SWITCH)
	rec.Data = map[string]any{"gpiochip": "gpiochip0", "gpioline": "17"}
	entry := domain.DeviceEntry{
		EntryId: "e1",
		Title:   "Garage",
		Data:    domain.EntryData{Entities: []domain.EntityRecord{rec}},
	}
	env := newHostEnvWithFactory(t, loader, entry)
	uid := service.UniqueId(rec)

	list := env.entities()
	require.Len(t, list, 1)
	require.NotNil(t, list[0].IsOn, "state known once added")
	assert.False(*list[0].IsOn)

	env.waitRegistered(1)
	require.Eventually(t, func() bool {
		_, ok := env.recording.LastState(uid)
		return ok
	}, 2*time.Second, 20*time.Millisecond)
	on, _ := env.recording.LastState(uid)
	assert.False(on)

	resp, err := env.client.Command(env.ctx(), uid, domain.COMMAND_TURN_ON)
	require.NoError(t, err)
	assert.True(*resp.IsOn)
	assert.Equal([]int{1}, opener.Last().Levels())
}
