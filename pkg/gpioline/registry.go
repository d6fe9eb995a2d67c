package gpioline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	DEFAULT_LOCK_TIMEOUT   = 2 * time.Second
	DEFAULT_PULSE_OVERHEAD = 15 * time.Microsecond
)

var ErrResourceBusy = errors.New("resource busy")

// Line is an output line opened for exclusive use by this process.
type Line interface {
	SetValue(value int) error
	Close() error
}

type Opener func(key LineKey) (Line, error)

type LineKey struct {
	Chip   string
	Offset int
}

func (k LineKey) String() string {
	return fmt.Sprintf("%s/%d", k.Chip, k.Offset)
}

// Resource pairs an open line with the lock serializing its I/O.
type Resource struct {
	Key  LineKey
	line Line
	lock *semaphore.Weighted
}

type Registry struct {
	mu          sync.Mutex
	resources   map[LineKey]*Resource
	open        Opener
	lockTimeout time.Duration
	overhead    time.Duration
	logger      *zap.Logger
}

type Option func(*Registry)

func WithOpener(open Opener) Option {
	return func(r *Registry) {
		r.open = open
	}
}

func WithLockTimeout(timeout time.Duration) Option {
	return func(r *Registry) {
		r.lockTimeout = timeout
	}
}

func WithPulseOverhead(overhead time.Duration) Option {
	return func(r *Registry) {
		r.overhead = overhead
	}
}

func NewRegistry(logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		resources:   make(map[LineKey]*Resource),
		open:        CdevOpener(DEFAULT_CONSUMER),
		lockTimeout: DEFAULT_LOCK_TIMEOUT,
		overhead:    DEFAULT_PULSE_OVERHEAD,
		logger:      logger.With(zap.String("component", "gpioline")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire returns the resource registered for key, opening the line as an
// output on first use. Every caller asking for the same key gets the same
// *Resource.
func (r *Registry) Acquire(key LineKey) (*Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if res, ok := r.resources[key]; ok {
		return res, nil
	}
	line, err := r.open(key)
	if err != nil {
		return nil, fmt.Errorf("open line %s: %w", key, err)
	}
	res := &Resource{
		Key:  key,
		line: line,
		lock: semaphore.NewWeighted(1),
	}
	r.resources[key] = res
	r.logger.Debug("gpioline: line acquired", zap.Stringer("key", key))
	return res, nil
}

func (r *Registry) WriteLevel(ctx context.Context, key LineKey, value bool) error {
	res, err := r.acquireLocked(ctx, key)
	if err != nil {
		return err
	}
	defer res.lock.Release(1)

	level := 0
	if value {
		level = 1
	}
	if err := res.line.SetValue(level); err != nil {
		return fmt.Errorf("write line %s: %w", key, err)
	}
	return nil
}

// Release closes the line registered for key and forgets it. Releasing an
// unknown key is a no-op.
func (r *Registry) Release(ctx context.Context, key LineKey) error {
	r.mu.Lock()
	res, ok := r.resources[key]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	if err := r.lock(ctx, res); err != nil {
		return err
	}
	defer res.lock.Release(1)

	r.mu.Lock()
	if r.resources[key] == res {
		delete(r.resources, key)
	}
	r.mu.Unlock()

	r.logger.Debug("gpioline: line released", zap.Stringer("key", key))
	return res.line.Close()
}

func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, res := range r.resources {
		if err := res.line.Close(); err != nil {
			r.logger.Warn("gpioline: close error", zap.Stringer("key", key), zap.Error(err))
		}
	}
	r.resources = make(map[LineKey]*Resource)
}

// acquireLocked returns the live resource for key with its lock held.
func (r *Registry) acquireLocked(ctx context.Context, key LineKey) (*Resource, error) {
	for {
		res, err := r.Acquire(key)
		if err != nil {
			return nil, err
		}
		if err := r.lock(ctx, res); err != nil {
			return nil, err
		}
		r.mu.Lock()
		live := r.resources[key] == res
		r.mu.Unlock()
		if live {
			return res, nil
		}
		// released while waiting for the lock
		res.lock.Release(1)
	}
}

func (r *Registry) lock(ctx context.Context, res *Resource) error {
	lockCtx, cancel := context.WithTimeout(ctx, r.lockTimeout)
	defer cancel()
	if err := res.lock.Acquire(lockCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("line %s: %w", res.Key, ErrResourceBusy)
	}
	return nil
}
