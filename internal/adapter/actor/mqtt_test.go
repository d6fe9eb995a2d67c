package actor

import (
	"testing"
	"time"

	"github.com/berfenger/virtualdevices/internal/core/domain"
	"github.com/berfenger/virtualdevices/internal/mqtt"
	"github.com/berfenger/virtualdevices/internal/util"
	"github.com/berfenger/virtualdevices/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEntities() []domain.EntityDescription {
	return []domain.EntityDescription{
		{EntryId: "e1", Platform: domain.PLATFORM_SWITCH, UniqueId: "switch.a1", Name: "Pump"},
		{EntryId: "e1", Platform: domain.PLATFORM_BUTTON, UniqueId: "button.b2", Name: "Bell"},
	}
}

func TestCommandRequest(t *testing.T) {
	assert := assert.New(t)

	cfg := util.LoadTestConfig(t.TempDir())
	act := newMQTTActor(&cfg, zap.NewNop())
	act.track(testEntities())

	req, err := act.commandRequest(ParsedCommand{Command: &mqtt.ParsedMQTTCommand{DeviceId: "switch_a1", Command: mqtt.COMMAND_SWITCH, Payload: "off"}})
	require.NoError(t, err)
	assert.Equal("switch.a1", req.UniqueId)
	assert.Equal(domain.COMMAND_TURN_OFF, req.Command)

	req, err = act.commandRequest(ParsedCommand{Command: &mqtt.ParsedMQTTCommand{DeviceId: "button_b2", Command: mqtt.COMMAND_BUTTON, Payload: "PRESS"}})
	require.NoError(t, err)
	assert.Equal(domain.COMMAND_PRESS, req.Command)

	_, err = act.commandRequest(ParsedCommand{Command: &mqtt.ParsedMQTTCommand{DeviceId: "button_b2", Command: mqtt.COMMAND_SWITCH, Payload: "on"}})
	assert.Error(err, "platform mismatch")

	act.untrack(testEntities()[:1])
	_, err = act.commandRequest(ParsedCommand{Command: &mqtt.ParsedMQTTCommand{DeviceId: "switch_a1", Command: mqtt.COMMAND_SWITCH, Payload: "on"}})
	assert.Error(err, "untracked")

	_, err = act.commandRequest(ParsedCommand{})
	assert.Error(err)
}

func TestMQTTActor(t *testing.T) {

	cfg := util.LoadTestConfig(t.TempDir())

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	recording := &RegistrarRecording{}
	received := make(chan any, 8)
	var registrar *actor.PID

	parent := context.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case *actor.Started:
			registrar = ctx.Spawn(actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, recording, logger) }))
		case domain.RegistrarReadyEvent:
			received <- msg
		case domain.EntityCommandRequest:
			received <- msg
		}
	}))

	select {
	case msg := <-received:
		assert.IsType(t, domain.RegistrarReadyEvent{}, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("registrar never became ready")
	}

	result, err := context.RequestFuture(registrar, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, resp.Healthy)

	context.Send(registrar, domain.RegisterEntitiesRequest{Entities: testEntities()})
	context.Send(registrar, domain.PublishEntityStateRequest{Entity: testEntities()[0], IsOn: true})
	context.Send(registrar, ParsedCommand{Command: &mqtt.ParsedMQTTCommand{DeviceId: "switch_a1", Command: mqtt.COMMAND_SWITCH, Payload: "on"}})

	select {
	case msg := <-received:
		cmd, ok := msg.(domain.EntityCommandRequest)
		require.True(t, ok)
		assert.Equal(t, "switch.a1", cmd.UniqueId)
		assert.Equal(t, domain.COMMAND_TURN_ON, cmd.Command)
	case <-time.After(2 * time.Second):
		t.Fatal("command not forwarded to parent")
	}

	assert.Len(t, recording.Registered(), 2)
	on, ok := recording.LastState("switch.a1")
	assert.True(t, ok)
	assert.True(t, on)

	context.Send(registrar, domain.UnregisterEntitiesRequest{Entities: testEntities()[:1]})
	context.Send(registrar, ParsedCommand{Command: &mqtt.ParsedMQTTCommand{DeviceId: "switch_a1", Command: mqtt.COMMAND_SWITCH, Payload: "off"}})

	select {
	case msg := <-received:
		t.Fatalf("unexpected message %T after unregister", msg)
	case <-time.After(300 * time.Millisecond):
	}
	assert.Len(t, recording.Unregistered(), 1)
	assert.Equal(t, 1, recording.Starts())

	context.Stop(parent)

	time.Sleep(100 * time.Millisecond)

	as.Shutdown()
}
