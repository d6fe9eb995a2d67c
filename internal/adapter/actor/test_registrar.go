package actor

import (
	"sync"

	"github.com/berfenger/virtualdevices/internal/config"
	"github.com/berfenger/virtualdevices/internal/core/domain"
	"github.com/berfenger/virtualdevices/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// RegistrarRecording collects what a test registrar was asked to expose.
type RegistrarRecording struct {
	mu           sync.Mutex
	registered   []domain.EntityDescription
	unregistered []domain.EntityDescription
	states       []domain.PublishEntityStateRequest
	readySent    int
}

func (r *RegistrarRecording) Registered() []domain.EntityDescription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.EntityDescription(nil), r.registered...)
}

func (r *RegistrarRecording) Unregistered() []domain.EntityDescription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.EntityDescription(nil), r.unregistered...)
}

func (r *RegistrarRecording) States() []domain.PublishEntityStateRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.PublishEntityStateRequest(nil), r.states...)
}

// LastState returns the last state published for uniqueId.
func (r *RegistrarRecording) LastState(uniqueId string) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.states) - 1; i >= 0; i-- {
		if r.states[i].Entity.UniqueId == uniqueId {
			return r.states[i].IsOn, true
		}
	}
	return false, false
}

func (r *RegistrarRecording) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readySent
}

// Dummy actor
func NewTestMQTTActor(config *config.Config, recording *RegistrarRecording, logger *zap.Logger) actor.Actor {
	act := newMQTTActor(config, logger)
	dummy := &testRegistrar{MQTTActor: act, recording: recording}
	act.behavior.Become(dummy.DummyReceive)
	return act
}

type testRegistrar struct {
	*MQTTActor
	recording *RegistrarRecording
}

func (state *testRegistrar) DummyReceive(ctx actor.Context) {
	rec := state.recording
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil, nil)
		rec.mu.Lock()
		rec.readySent++
		rec.mu.Unlock()
		ctx.Send(ctx.Parent(), domain.RegistrarReadyEvent{})
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@dummy ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_REGISTRAR,
			Healthy: true,
			State:   "idle",
		})
	case domain.RegisterEntitiesRequest:
		state.track(msg.Entities)
		rec.mu.Lock()
		rec.registered = append(rec.registered, msg.Entities...)
		rec.mu.Unlock()
	case domain.UnregisterEntitiesRequest:
		state.untrack(msg.Entities)
		rec.mu.Lock()
		rec.unregistered = append(rec.unregistered, msg.Entities...)
		rec.mu.Unlock()
	case domain.PublishEntityStateRequest:
		rec.mu.Lock()
		rec.states = append(rec.states, msg)
		rec.mu.Unlock()
		if msg.ReplyToRef != nil {
			ctx.Send((*actor.PID)(msg.ReplyToRef), domain.PublishEntityStateResponse{})
		}
	case ParsedCommand:
		state.routeCommand(ctx, msg)
	}
}
