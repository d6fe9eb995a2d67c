package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/berfenger/virtualdevices/internal/core/port"
)

// TestEntity records the lifecycle calls made on it.
type TestEntity struct {
	mu     sync.Mutex
	Module string
	Data   map[string]any
	Err    error
	calls  []string
	on     *bool
	closed bool
}

func (e *TestEntity) record(call string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
	return e.Err
}

func (e *TestEntity) setOn(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.on = &v
}

func (e *TestEntity) TurnOn(ctx context.Context) error {
	if err := e.record("turn_on"); err != nil {
		return err
	}
	e.setOn(true)
	return nil
}

func (e *TestEntity) TurnOff(ctx context.Context) error {
	if err := e.record("turn_off"); err != nil {
		return err
	}
	e.setOn(false)
	return nil
}

func (e *TestEntity) Press(ctx context.Context) error      { return e.record("press") }
func (e *TestEntity) Update(ctx context.Context) error     { return e.record("update") }
func (e *TestEntity) Added(ctx context.Context) error      { return e.record("added") }
func (e *TestEntity) WillRemove(ctx context.Context) error { return e.record("will_remove") }

func (e *TestEntity) IsOn() (bool, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.on == nil {
		return false, false
	}
	return *e.on, true
}

func (e *TestEntity) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

func (e *TestEntity) SetErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Err = err
}

func (e *TestEntity) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *TestEntity) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// TestFactory builds TestEntities for the modules it knows. Modules listed in
// Broken fail to construct.
type TestFactory struct {
	mu        sync.Mutex
	Platforms map[string][]string
	Broken    map[string]error
	Built     []*TestEntity
}

func NewTestFactory() *TestFactory {
	return &TestFactory{
		Platforms: make(map[string][]string),
		Broken:    make(map[string]error),
	}
}

func (f *TestFactory) Construct(ctx context.Context, module, platform string, data map[string]any) (port.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.Broken[module]; ok {
		return nil, err
	}
	platforms, ok := f.Platforms[module]
	if !ok {
		return nil, fmt.Errorf("plugin not found: %s", module)
	}
	for _, p := range platforms {
		if p == platform {
			e := &TestEntity{Module: module, Data: data}
			f.Built = append(f.Built, e)
			return e, nil
		}
	}
	return nil, fmt.Errorf("no constructor for %s.%s", module, platform)
}

func (f *TestFactory) SetBroken(module string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.Broken, module)
		return
	}
	f.Broken[module] = err
}

func (f *TestFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Built)
}

func (f *TestFactory) Entities() []*TestEntity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*TestEntity(nil), f.Built...)
}
