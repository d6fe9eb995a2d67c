package domain

const (
	ACTOR_ID_HOST      = "host"
	ACTOR_ID_REGISTRAR = "registrar"
)

type SetupEntryRequest struct {
	ActorRequestMixIn
	EntryId string
}

type SetupEntryResponse struct {
	ActorResponseMixIn
	Entities int
}

type UnloadEntryRequest struct {
	ActorRequestMixIn
	EntryId string
}

type UnloadEntryResponse struct {
	ActorResponseMixIn
}

type ReloadEntryRequest struct {
	ActorRequestMixIn
	EntryId string
}

type ReloadEntryResponse struct {
	ActorResponseMixIn
	Entities int
}

type ListEntitiesRequest struct {
	ActorRequestMixIn
}

type EntityStatus struct {
	EntityDescription
	IsOn *bool `json:"is_on,omitempty"`
}

type ListEntitiesResponse struct {
	ActorResponseMixIn
	Entities []EntityStatus
}

// PollRequest asks the host to refresh every live entity.
type PollRequest struct {
}

// PluginChangedEvent is emitted when a plugin or mixin source changes on disk.
type PluginChangedEvent struct {
	Name  string
	Mixin bool
}

// Registrar protocol

// RegistrarReadyEvent is sent by the registrar to its parent each time it is
// able to expose entities. The parent answers by registering everything live.
type RegistrarReadyEvent struct {
}

type RegisterEntitiesRequest struct {
	ActorRequestMixIn
	Entities []EntityDescription
}

type UnregisterEntitiesRequest struct {
	ActorRequestMixIn
	Entities []EntityDescription
}

type PublishEntityStateRequest struct {
	ActorRequestMixIn
	Entity EntityDescription
	IsOn   bool
}

type PublishEntityStateResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
