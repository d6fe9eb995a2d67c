package actor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/berfenger/virtualdevices/internal/config"
	"github.com/berfenger/virtualdevices/internal/core/domain"
	"github.com/berfenger/virtualdevices/internal/mqtt"
	"github.com/berfenger/virtualdevices/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTActor exposes the host entities over MQTT with Home Assistant
// discovery. Commands received on switch and button topics are forwarded to
// the parent as EntityCommandRequest.
type MQTTActor struct {
	config   *config.Config
	behavior actor.Behavior
	stash    *actorutil.Stash
	client   *mqtt.MQTTClient
	entities map[string]domain.EntityDescription
	logger   *zap.Logger
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	ReplyTo *actor.PID
	Error   error
}

type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

func NewMQTTActor(config *config.Config, logger *zap.Logger) *MQTTActor {
	act := newMQTTActor(config, logger)
	act.behavior.Become(act.StartingReceive)
	return act
}

func newMQTTActor(config *config.Config, logger *zap.Logger) *MQTTActor {
	return &MQTTActor{
		config:   config,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		entities: make(map[string]domain.EntityDescription),
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_REGISTRAR, logger),
	}
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		// create MQTT client
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
		})

		// connect to MQTT server
		state.client.Connect(func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")

		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		// subscribe to MQTT command topic
		state.client.SubscribeToCommandTopic(func(c pahomqtt.Client, m pahomqtt.Message) {
			cmd, err := state.client.ParseMQTTCommand(m.Topic(), m.Payload())
			if err == nil && cmd != nil {
				ctx.Send(ctx.Self(), ParsedCommand{Command: cmd})
			}
		}, func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), MQTTSubscribed{})
			}
		}, 1*time.Second)
	case MQTTSubscribed:
		// init completed, transition to default state
		state.logger.Debug("mqtt@starting subscribed")
		state.behavior.Become(state.DefaultReceive)
		ctx.Send(ctx.Parent(), domain.RegistrarReadyEvent{})
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_REGISTRAR,
			Healthy: true,
			State:   "idle",
		})
	case ParsedCommand:
		state.routeCommand(ctx, msg)
	case domain.RegisterEntitiesRequest:
		state.logger.Debug("mqtt@default RegisterEntitiesRequest", zap.Int("entities", len(msg.Entities)))
		state.track(msg.Entities)
		if err := state.PublishHomeAssistantDiscovery(msg.Entities); err != nil {
			state.logger.Error("mqtt@default PublishHADiscovery error", zap.Error(err))
		}
	case domain.UnregisterEntitiesRequest:
		state.logger.Debug("mqtt@default UnregisterEntitiesRequest", zap.Int("entities", len(msg.Entities)))
		state.untrack(msg.Entities)
		state.RemoveHomeAssistantDiscovery(msg.Entities)
	case domain.PublishEntityStateRequest:
		state.logger.Debug("mqtt@default PublishEntityStateRequest", zap.String("unique_id", msg.Entity.UniqueId), zap.Bool("is_on", msg.IsOn))
		state.publishState(ctx, msg, actorutil.ForRequest(msg).ReplyTo(ctx))
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) PublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		// log error and return to default state
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishEntityStateResponse{
				ActorResponseMixIn: domain.ResponseWithError(msg.Error),
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case MQTTConnectionLost:
		state.logger.Error("mqtt@publishing connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) publishState(ctx actor.Context, msg domain.PublishEntityStateRequest, replyTo *actor.PID) {
	topic := state.client.SwitchStateTopic(msg.Entity.ObjectId())
	payload := bool2MQTTPayload(msg.IsOn)
	state.logger.Sugar().Debugf("mqtt@publish: state publish %s => %s", topic, payload)
	state.client.Publish(topic, payload, 1, true, func(err error) {
		ctx.Send(ctx.Self(), publishResult{ReplyTo: replyTo, Error: err})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.PublishResultReceive)
}

func (state *MQTTActor) routeCommand(ctx actor.Context, msg ParsedCommand) {
	state.logger.Debug("mqtt@default parsedCommand", zap.Any("command", msg.Command))
	req, err := state.commandRequest(msg)
	if err != nil {
		state.logger.Warn("mqtt@default dropping command", zap.Error(err))
		return
	}
	// route command to parent
	ctx.Send(ctx.Parent(), *req)
}

func (state *MQTTActor) commandRequest(msg ParsedCommand) (*domain.EntityCommandRequest, error) {
	if msg.Command == nil {
		return nil, fmt.Errorf("empty command")
	}
	entity, ok := state.entities[entityKey(msg.Command.Command, msg.Command.DeviceId)]
	if !ok {
		return nil, fmt.Errorf("no entity for %s %s", msg.Command.Command, msg.Command.DeviceId)
	}
	return actorutil.ParsedMQTTCommandToCommand(*msg.Command, entity.UniqueId)
}

func (state *MQTTActor) track(entities []domain.EntityDescription) {
	for _, e := range entities {
		state.entities[entityKey(e.Platform, e.ObjectId())] = e
	}
}

func (state *MQTTActor) untrack(entities []domain.EntityDescription) {
	for _, e := range entities {
		delete(state.entities, entityKey(e.Platform, e.ObjectId()))
	}
}

func (state *MQTTActor) PublishHomeAssistantDiscovery(entities []domain.EntityDescription) error {
	if !state.config.MQTT.HADiscoveryEnable {
		return nil
	}
	for i := range entities {
		msg, ok := mqtt.EntityToHADiscoveryMessage(state.client, entities[i])
		if !ok {
			continue
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		topic := mqtt.HADiscoveryTopic(state.client, entities[i])
		state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
	}
	return nil
}

// RemoveHomeAssistantDiscovery clears the retained config of each entity.
func (state *MQTTActor) RemoveHomeAssistantDiscovery(entities []domain.EntityDescription) {
	if !state.config.MQTT.HADiscoveryEnable {
		return
	}
	for i := range entities {
		topic := mqtt.HADiscoveryTopic(state.client, entities[i])
		state.client.Publish(topic, "", 0, true, func(error) {}, 1*time.Second)
	}
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.client != nil {
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
	}
}

func entityKey(platform, objectId string) string {
	return platform + "/" + objectId
}

func bool2MQTTPayload(value bool) string {
	if value {
		return mqtt.MQTT_PAYLOAD_ON
	} else {
		return mqtt.MQTT_PAYLOAD_OFF
	}
}
