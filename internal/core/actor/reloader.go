package actor

import (
	"context"
	"errors"
	"time"

	"github.com/berfenger/virtualdevices/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
)

// HostClient talks to a running HostActor from outside the actor system.
type HostClient struct {
	root    *actor.RootContext
	host    *actor.PID
	timeout time.Duration
}

func NewHostClient(root *actor.RootContext, host *actor.PID) *HostClient {
	return &HostClient{root: root, host: host, timeout: DEFAULT_COMMAND_TIMEOUT + 5*time.Second}
}

func (c *HostClient) request(ctx context.Context, msg any) (any, error) {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}
	res, err := c.root.RequestFuture(c.host, msg, timeout).Result()
	if err != nil {
		return nil, err
	}
	if resp, ok := res.(domain.ActorResponse); ok && resp.HasResponseError() {
		return res, resp.GetResponseError()
	}
	return res, nil
}

// ReloadEntry rebuilds the live entities of entryId.
func (c *HostClient) ReloadEntry(ctx context.Context, entryId string) error {
	_, err := c.request(ctx, domain.ReloadEntryRequest{EntryId: entryId})
	return err
}

func (c *HostClient) UnloadEntry(ctx context.Context, entryId string) error {
	_, err := c.request(ctx, domain.UnloadEntryRequest{EntryId: entryId})
	return err
}

func (c *HostClient) Command(ctx context.Context, uniqueId, command string) (*domain.EntityCommandResponse, error) {
	res, err := c.request(ctx, domain.EntityCommandRequest{UniqueId: uniqueId, Command: command})
	if resp, ok := res.(domain.EntityCommandResponse); ok {
		return &resp, err
	}
	if err == nil {
		err = errors.New("unexpected host response")
	}
	return nil, err
}

func (c *HostClient) Entities(ctx context.Context) ([]domain.EntityStatus, error) {
	res, err := c.request(ctx, domain.ListEntitiesRequest{})
	if err != nil {
		return nil, err
	}
	resp, ok := res.(domain.ListEntitiesResponse)
	if !ok {
		return nil, errors.New("unexpected host response")
	}
	return resp.Entities, nil
}

func (c *HostClient) Health(ctx context.Context) (bool, error) {
	res, err := c.request(ctx, domain.ActorHealthRequest{})
	if err != nil {
		return false, err
	}
	resp, ok := res.(domain.ActorHealthResponse)
	return ok && resp.Healthy, nil
}

// PluginChanged forwards a plugin source change to the host.
func (c *HostClient) PluginChanged(name string, mixin bool) {
	c.root.Send(c.host, domain.PluginChangedEvent{Name: name, Mixin: mixin})
}
