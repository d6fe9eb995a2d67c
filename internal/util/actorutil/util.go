package actorutil

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/berfenger/virtualdevices/internal/core/domain"
	"github.com/berfenger/virtualdevices/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel:
		slogLevel = slog.LevelError
	case zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {

		// create a new logger
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToCommand maps a command received on a switch or button
// topic to the host request for the entity with uniqueId.
func ParsedMQTTCommandToCommand(cmd mqtt.ParsedMQTTCommand, uniqueId string) (*domain.EntityCommandRequest, error) {
	req := &domain.EntityCommandRequest{UniqueId: uniqueId}
	switch cmd.Command {
	case mqtt.COMMAND_SWITCH:
		switch cmd.Payload {
		case mqtt.MQTT_PAYLOAD_ON:
			req.Command = domain.COMMAND_TURN_ON
		case mqtt.MQTT_PAYLOAD_OFF:
			req.Command = domain.COMMAND_TURN_OFF
		default:
			return nil, fmt.Errorf("invalid switch payload %q", cmd.Payload)
		}
	case mqtt.COMMAND_BUTTON:
		req.Command = domain.COMMAND_PRESS
	default:
		return nil, fmt.Errorf("unsupported command %q", cmd.Command)
	}
	return req, nil
}
