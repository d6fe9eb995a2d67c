package flow

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	HANDLER_CONFIG  = "config"
	HANDLER_OPTIONS = "options"
)

type session struct {
	mu      sync.Mutex
	handler string
	flow    Flow
}

// Manager keeps flows in progress by id. A flow is forgotten once it returns
// a terminal result or is aborted.
type Manager struct {
	mu     sync.Mutex
	flows  map[string]*session
	deps   Deps
	logger *zap.Logger
}

func NewManager(deps Deps) *Manager {
	return &Manager{
		flows:  make(map[string]*session),
		deps:   deps,
		logger: deps.Logger.With(zap.String("component", "flow_manager")),
	}
}

func (m *Manager) StartConfigFlow(ctx context.Context) (*Result, error) {
	return m.start(ctx, HANDLER_CONFIG, NewConfigFlow(m.deps))
}

func (m *Manager) StartOptionsFlow(ctx context.Context, entryId string) (*Result, error) {
	f, err := NewOptionsFlow(ctx, m.deps, entryId)
	if err != nil {
		return nil, err
	}
	return m.start(ctx, HANDLER_OPTIONS, f)
}

func (m *Manager) start(ctx context.Context, handler string, f Flow) (*Result, error) {
	s := &session{handler: handler, flow: f}
	flowId := uuid.NewString()

	res, err := f.Start(ctx)
	if err != nil {
		return nil, err
	}
	if !res.Terminal() {
		m.mu.Lock()
		m.flows[flowId] = s
		m.mu.Unlock()
	}
	m.logger.Debug("flow_manager: started", zap.String("flow_id", flowId), zap.String("handler", handler), zap.String("step", res.StepId))
	res.FlowId = flowId
	res.Handler = handler
	return res, nil
}

// Configure submits input to the current step of the flow.
func (m *Manager) Configure(ctx context.Context, flowId string, input map[string]any) (*Result, error) {
	m.mu.Lock()
	s, ok := m.flows[flowId]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, flowId)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.flow.Submit(ctx, input)
	if err != nil {
		return nil, err
	}
	if res.Terminal() {
		m.forget(flowId)
		m.logger.Debug("flow_manager: finished", zap.String("flow_id", flowId), zap.String("result", string(res.Type)))
	}
	res.FlowId = flowId
	res.Handler = s.handler
	return res, nil
}

func (m *Manager) Abort(flowId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.flows[flowId]; !ok {
		return fmt.Errorf("%w: %s", ErrFlowNotFound, flowId)
	}
	delete(m.flows, flowId)
	return nil
}

func (m *Manager) InProgress() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.flows)
}

func (m *Manager) forget(flowId string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flows, flowId)
}
