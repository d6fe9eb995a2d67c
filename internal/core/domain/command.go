package domain

import "fmt"

const (
	COMMAND_TURN_ON  = "turn_on"
	COMMAND_TURN_OFF = "turn_off"
	COMMAND_PRESS    = "press"
)

var platformCommands = map[string][]string{
	PLATFORM_SWITCH: {COMMAND_TURN_ON, COMMAND_TURN_OFF},
	PLATFORM_BUTTON: {COMMAND_PRESS},
}

func SupportsCommand(platform, command string) bool {
	for _, c := range platformCommands[platform] {
		if c == command {
			return true
		}
	}
	return false
}

type EntityCommandRequest struct {
	ActorRequestMixIn
	UniqueId string
	Command  string
}

type EntityCommandResponse struct {
	ActorResponseMixIn
	UniqueId string
	IsOn     *bool
}

type UnknownEntityError struct {
	UniqueId string
}

func (e UnknownEntityError) Error() string {
	return fmt.Sprintf("unknown entity %s", e.UniqueId)
}

type UnsupportedCommandError struct {
	Platform string
	Command  string
}

func (e UnsupportedCommandError) Error() string {
	return fmt.Sprintf("platform %s does not support %s", e.Platform, e.Command)
}
