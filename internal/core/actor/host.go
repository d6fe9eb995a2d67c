package actor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/berfenger/virtualdevices/internal/core/domain"
	"github.com/berfenger/virtualdevices/internal/core/port"
	"github.com/berfenger/virtualdevices/internal/core/service"
	. "github.com/berfenger/virtualdevices/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	DEFAULT_COMMAND_TIMEOUT = 30 * time.Second
	storeTimeout            = 5 * time.Second
)

// RegistrarProvider builds the child actor that exposes live entities.
type RegistrarProvider func() actor.Actor

type liveEntity struct {
	service.HostedEntity
	isOn *bool
}

type hostedEntry struct {
	entry    domain.DeviceEntry
	entities map[string]*liveEntity
}

// HostActor owns the live entities of every device entry. Setup, reload,
// commands and polling all run on its mailbox.
type HostActor struct {
	ActorWithStates
	stash             *Stash
	store             port.EntryStore
	assembler         *service.Assembler
	registrarProvider RegistrarProvider
	registrar         *actor.PID
	registrarReady    bool
	entries           map[string]*hostedEntry
	index             map[string]*liveEntity
	commandTimeout    time.Duration
	logger            *zap.Logger
}

func NewHostActor(store port.EntryStore, assembler *service.Assembler, registrarProvider RegistrarProvider, logger *zap.Logger) *HostActor {
	act := &HostActor{
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
		stash:             &Stash{},
		store:             store,
		assembler:         assembler,
		registrarProvider: registrarProvider,
		entries:           make(map[string]*hostedEntry),
		index:             make(map[string]*liveEntity),
		commandTimeout:    DEFAULT_COMMAND_TIMEOUT,
		logger:            ActorLogger(domain.ACTOR_ID_HOST, logger),
	}
	act.Become(hostStartingState{actor: act})
	return act
}

func (h *HostActor) WithCommandTimeout(timeout time.Duration) *HostActor {
	h.commandTimeout = timeout
	return h
}

func (h *HostActor) Receive(ctx actor.Context) {
	h.Behavior.Receive(ctx)
}

// Starting state

type hostStartingState struct {
	ActorState
	actor *HostActor
}

func (state hostStartingState) Name() string {
	return "starting"
}

func (state hostStartingState) Receive(ctx actor.Context) {
	h := state.actor
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		h.logger.Debug("host@starting started")

		if h.registrarProvider != nil {
			pid, err := h.startRegistrar(ctx)
			if err != nil {
				panic(err)
			}
			h.registrar = pid
		}

		sctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		entries, err := h.store.ListEntries(sctx)
		cancel()
		if err != nil {
			h.logger.Error("host@starting cannot list entries", zap.Error(err))
			panic(err)
		}
		for i := range entries {
			h.setupLoaded(ctx, entries[i])
		}
		h.logger.Info("host@starting entries set up", zap.Int("entries", len(h.entries)), zap.Int("entities", len(h.index)))

		h.Become(hostDefaultState{actor: h})
		h.stash.UnstashAll(ctx)
	case *actor.Restarting:
		h.unloadAll(ctx)
	default:
		h.logger.Debug("host@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		h.stash.Stash(ctx, msg)
	}
}

// Default state

type hostDefaultState struct {
	ActorState
	actor *HostActor
}

func (state hostDefaultState) Name() string {
	return "default"
}

func (state hostDefaultState) Receive(ctx actor.Context) {
	h := state.actor
	switch msg := ctx.Message().(type) {
	case domain.SetupEntryRequest:
		h.logger.Debug("host@default SetupEntryRequest", zap.String("entry", msg.EntryId))
		n, err := h.setupEntry(ctx, msg.EntryId)
		ForRequest(msg).Respond(ctx, domain.SetupEntryResponse{
			ActorResponseMixIn: domain.ResponseWithError(err),
			Entities:           n,
		})
	case domain.ReloadEntryRequest:
		h.logger.Debug("host@default ReloadEntryRequest", zap.String("entry", msg.EntryId))
		n, err := h.reloadEntry(ctx, msg.EntryId)
		ForRequest(msg).Respond(ctx, domain.ReloadEntryResponse{
			ActorResponseMixIn: domain.ResponseWithError(err),
			Entities:           n,
		})
	case domain.UnloadEntryRequest:
		h.logger.Debug("host@default UnloadEntryRequest", zap.String("entry", msg.EntryId))
		h.unloadEntry(ctx, msg.EntryId)
		ForRequest(msg).Respond(ctx, domain.UnloadEntryResponse{})
	case domain.EntityCommandRequest:
		h.logger.Debug("host@default EntityCommandRequest", zap.String("unique_id", msg.UniqueId), zap.String("command", msg.Command))
		h.runCommand(ctx, msg)
	case domain.PollRequest:
		h.poll(ctx)
	case domain.PluginChangedEvent:
		h.logger.Debug("host@default PluginChangedEvent", zap.String("plugin", msg.Name), zap.Bool("mixin", msg.Mixin))
		h.pluginChanged(ctx, msg)
	case domain.RegistrarReadyEvent:
		h.logger.Debug("host@default RegistrarReadyEvent")
		h.registrarReady = true
		h.register(ctx, h.liveEntities())
	case domain.ListEntitiesRequest:
		ForRequest(msg).Respond(ctx, domain.ListEntitiesResponse{Entities: h.statuses()})
	case domain.ActorHealthRequest:
		h.logger.Debug("host@default ActorHealthRequest")
		check := &hostHealthCheck{respondTo: ForRequest(msg).ReplyTo(ctx)}
		if h.registrar == nil {
			check.respond(ctx, true)
			return
		}
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(h.registrar, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_REGISTRAR,
				Healthy: false,
			}
		})
		ctx.SetReceiveTimeout(1 * time.Second)
		h.BecomeStacked(hostHealthCheckState{actor: h, check: check})
	case *actor.Stopping:
		h.unloadAll(ctx)
	case *actor.Restarting:
		h.unloadAll(ctx)
	case *actor.Terminated:
		h.logger.Warn("host@default child terminated", zap.String("who", msg.Who.Id))
	default:
		h.logger.Debug("host@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Health check state

type hostHealthCheck struct {
	respondTo *actor.PID
}

func (c *hostHealthCheck) respond(ctx actor.Context, healthy bool) {
	state := "ready"
	if !healthy {
		state = "registrar_unhealthy"
	}
	if c.respondTo != nil {
		ctx.Send(c.respondTo, domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HOST,
			Healthy: healthy,
			State:   state,
		})
	}
}

type hostHealthCheckState struct {
	ActorState
	actor *HostActor
	check *hostHealthCheck
}

func (state hostHealthCheckState) Name() string {
	return "healthcheck"
}

func (state hostHealthCheckState) Receive(ctx actor.Context) {
	h := state.actor
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		state.check.respond(ctx, false)
		state.done(ctx)
	case domain.ActorHealthResponse:
		h.logger.Debug("host@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.check.respond(ctx, msg.Healthy)
		state.done(ctx)
	default:
		h.logger.Debug("host@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		h.stash.Stash(ctx, msg)
	}
}

func (state hostHealthCheckState) done(ctx actor.Context) {
	ctx.CancelReceiveTimeout()
	state.actor.UnbecomeStacked()
	state.actor.stash.UnstashAll(ctx)
}

// Lifecycle

func (h *HostActor) startRegistrar(ctx actor.Context) (*actor.PID, error) {
	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	props := actor.PropsFromProducer(func() actor.Actor {
		return h.registrarProvider()
	}, actor.WithSupervisor(supervisor))
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_REGISTRAR)
	if err != nil {
		return nil, err
	}
	return pid, nil
}

func (h *HostActor) loadEntry(entryId string) (*domain.DeviceEntry, error) {
	sctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	return h.store.GetEntry(sctx, entryId)
}

func (h *HostActor) setupEntry(ctx actor.Context, entryId string) (int, error) {
	if _, ok := h.entries[entryId]; ok {
		return h.reloadEntry(ctx, entryId)
	}
	entry, err := h.loadEntry(entryId)
	if err != nil {
		return 0, err
	}
	return h.setupLoaded(ctx, *entry), nil
}

func (h *HostActor) setupLoaded(ctx actor.Context, entry domain.DeviceEntry) int {
	hosted := &hostedEntry{entry: entry, entities: make(map[string]*liveEntity)}
	h.entries[entry.EntryId] = hosted
	added := h.addEntities(hosted, h.assemble(entry))
	h.register(ctx, added)
	h.logger.Info("host: entry set up", zap.String("entry", entry.EntryId), zap.String("title", entry.Title), zap.Int("entities", len(added)))
	return len(hosted.entities)
}

func (h *HostActor) assemble(entry domain.DeviceEntry) []service.HostedEntity {
	actx, cancel := context.WithTimeout(context.Background(), h.commandTimeout)
	defer cancel()
	assembled := make([]service.HostedEntity, 0)
	for _, platform := range domain.SupportedPlatforms {
		assembled = append(assembled, h.assembler.Assemble(actx, entry, platform)...)
	}
	return assembled
}

// addEntities refreshes each entity before announcing it as added, then
// adopts the state it reports.
func (h *HostActor) addEntities(hosted *hostedEntry, assembled []service.HostedEntity) []*liveEntity {
	added := make([]*liveEntity, 0, len(assembled))
	for _, he := range assembled {
		uid := he.Description.UniqueId
		if other, ok := h.index[uid]; ok && other.Description.EntryId != hosted.entry.EntryId {
			h.logger.Warn("host: unique id already hosted by another entry, skipping",
				zap.String("unique_id", uid), zap.String("entry", hosted.entry.EntryId))
			he.Entity.Close()
			continue
		}
		live := &liveEntity{HostedEntity: he}
		h.entityCall(live, "update", live.Entity.Update)
		h.entityCall(live, "added", live.Entity.Added)
		live.refreshState()
		hosted.entities[uid] = live
		h.index[uid] = live
		added = append(added, live)
	}
	return added
}

func (h *HostActor) removeEntity(hosted *hostedEntry, live *liveEntity) {
	h.entityCall(live, "will_remove", live.Entity.WillRemove)
	live.Entity.Close()
	uid := live.Description.UniqueId
	delete(hosted.entities, uid)
	if h.index[uid] == live {
		delete(h.index, uid)
	}
}

// reloadEntry rebuilds the entities of an entry. Entities whose record is
// still present but fails to construct keep running.
func (h *HostActor) reloadEntry(ctx actor.Context, entryId string) (int, error) {
	hosted, ok := h.entries[entryId]
	if !ok {
		return h.setupEntry(ctx, entryId)
	}
	entry, err := h.loadEntry(entryId)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return len(hosted.entities), err
		}
		h.logger.Info("host: entry gone, unloading", zap.String("entry", entryId), zap.Error(err))
		h.unloadEntry(ctx, entryId)
		return 0, err
	}

	assembled := h.assemble(*entry)
	fresh := make(map[string]bool, len(assembled))
	for _, he := range assembled {
		fresh[he.Description.UniqueId] = true
	}

	removed := make([]domain.EntityDescription, 0)
	for uid, live := range hosted.entities {
		rec, recordPresent := entry.Data.FindEntity(live.Description.RecordId)
		switch {
		case fresh[uid]:
			h.removeEntity(hosted, live)
		case recordPresent && service.UniqueId(rec) == uid:
			h.logger.Warn("host: keeping previous entity, replacement failed",
				zap.String("entry", entryId), zap.String("unique_id", uid))
		default:
			h.removeEntity(hosted, live)
			removed = append(removed, live.Description)
		}
	}

	hosted.entry = *entry
	added := h.addEntities(hosted, assembled)
	h.unregister(ctx, removed)
	h.register(ctx, added)
	h.logger.Info("host: entry reloaded", zap.String("entry", entryId),
		zap.Int("entities", len(hosted.entities)), zap.Int("removed", len(removed)))
	return len(hosted.entities), nil
}

func (h *HostActor) unloadEntry(ctx actor.Context, entryId string) {
	hosted, ok := h.entries[entryId]
	if !ok {
		return
	}
	removed := make([]domain.EntityDescription, 0, len(hosted.entities))
	for _, live := range hosted.entities {
		h.removeEntity(hosted, live)
		removed = append(removed, live.Description)
	}
	delete(h.entries, entryId)
	h.unregister(ctx, removed)
}

func (h *HostActor) unloadAll(ctx actor.Context) {
	for entryId := range h.entries {
		h.unloadEntry(ctx, entryId)
	}
}

func (h *HostActor) canRegister() bool {
	return h.registrar != nil && h.registrarReady
}

func (h *HostActor) liveEntities() []*liveEntity {
	out := make([]*liveEntity, 0, len(h.index))
	for _, live := range h.index {
		out = append(out, live)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Description.UniqueId < out[j].Description.UniqueId })
	return out
}

func (h *HostActor) register(ctx actor.Context, added []*liveEntity) {
	if !h.canRegister() || len(added) == 0 {
		return
	}
	descs := make([]domain.EntityDescription, 0, len(added))
	for _, live := range added {
		descs = append(descs, live.Description)
	}
	ctx.Send(h.registrar, domain.RegisterEntitiesRequest{Entities: descs})
	for _, live := range added {
		h.publishState(ctx, live)
	}
}

func (h *HostActor) unregister(ctx actor.Context, removed []domain.EntityDescription) {
	if !h.canRegister() || len(removed) == 0 {
		return
	}
	ctx.Send(h.registrar, domain.UnregisterEntitiesRequest{Entities: removed})
}

func (h *HostActor) publishState(ctx actor.Context, live *liveEntity) {
	if !h.canRegister() || live.Description.Platform != domain.PLATFORM_SWITCH || live.isOn == nil {
		return
	}
	ctx.Send(h.registrar, domain.PublishEntityStateRequest{
		Entity: live.Description,
		IsOn:   *live.isOn,
	})
}

func (h *HostActor) entityCall(live *liveEntity, method string, fn func(context.Context) error) {
	cctx, cancel := context.WithTimeout(context.Background(), h.commandTimeout)
	defer cancel()
	if err := fn(cctx); err != nil {
		h.logger.Error("host: entity call failed",
			zap.String("unique_id", live.Description.UniqueId),
			zap.String("method", method),
			zap.Error(err))
	}
}

// refreshState adopts the state reported by the plugin, if it reports one.
func (live *liveEntity) refreshState() bool {
	on, ok := live.Entity.IsOn()
	if !ok {
		return false
	}
	changed := live.isOn == nil || *live.isOn != on
	live.isOn = &on
	return changed
}

// Commands

func (h *HostActor) runCommand(ctx actor.Context, msg domain.EntityCommandRequest) {
	respond := func(err error, isOn *bool) {
		if err != nil {
			h.logger.Warn("host: command failed", zap.String("unique_id", msg.UniqueId),
				zap.String("command", msg.Command), zap.Error(err))
		}
		ForRequest(msg).Respond(ctx, domain.EntityCommandResponse{
			ActorResponseMixIn: domain.ResponseWithError(err),
			UniqueId:           msg.UniqueId,
			IsOn:               isOn,
		})
	}

	live, ok := h.index[msg.UniqueId]
	if !ok {
		respond(domain.UnknownEntityError{UniqueId: msg.UniqueId}, nil)
		return
	}
	platform := live.Description.Platform
	if !domain.SupportsCommand(platform, msg.Command) {
		respond(domain.UnsupportedCommandError{Platform: platform, Command: msg.Command}, nil)
		return
	}

	NewBackgroundTaskErr(ctx, func() error {
		cctx, cancel := context.WithTimeout(context.Background(), h.commandTimeout)
		defer cancel()
		switch msg.Command {
		case domain.COMMAND_TURN_ON:
			return live.Entity.TurnOn(cctx)
		case domain.COMMAND_TURN_OFF:
			return live.Entity.TurnOff(cctx)
		default:
			return live.Entity.Press(cctx)
		}
	}).WithTimeout(h.commandTimeout).OnError(func(err error) {
		respond(err, live.isOn)
	}).OnSuccess(func(struct{}) {
		if platform == domain.PLATFORM_SWITCH && !live.refreshState() {
			on := msg.Command == domain.COMMAND_TURN_ON
			live.isOn = &on
		}
		h.publishState(ctx, live)
		respond(nil, live.isOn)
	}).Run()
}

// Polling

func (h *HostActor) poll(ctx actor.Context) {
	for _, live := range h.index {
		h.entityCall(live, "update", live.Entity.Update)
		if live.refreshState() {
			h.publishState(ctx, live)
		}
	}
}

func (h *HostActor) pluginChanged(ctx actor.Context, ev domain.PluginChangedEvent) {
	ids := make([]string, 0)
	for entryId, hosted := range h.entries {
		if ev.Mixin || hosted.entry.Data.UsesModule(ev.Name) {
			ids = append(ids, entryId)
		}
	}
	sort.Strings(ids)
	for _, entryId := range ids {
		if _, err := h.reloadEntry(ctx, entryId); err != nil {
			h.logger.Error("host: reload after plugin change failed", zap.String("entry", entryId),
				zap.String("plugin", ev.Name), zap.Error(err))
		}
	}
}

func (h *HostActor) statuses() []domain.EntityStatus {
	out := make([]domain.EntityStatus, 0, len(h.index))
	for _, live := range h.index {
		status := domain.EntityStatus{EntityDescription: live.Description}
		if live.isOn != nil {
			on := *live.isOn
			status.IsOn = &on
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueId < out[j].UniqueId })
	return out
}
