package gpioline

import (
	"errors"
	"sync"
	"time"
)

type Transition struct {
	Level int
	At    time.Time
}

// TestLine records every value written to it.
type TestLine struct {
	mu          sync.Mutex
	Key         LineKey
	transitions []Transition
	closed      bool
}

func (l *TestLine) SetValue(value int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("line closed")
	}
	l.transitions = append(l.transitions, Transition{Level: value, At: time.Now()})
	return nil
}

func (l *TestLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *TestLine) Transitions() []Transition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Transition(nil), l.transitions...)
}

func (l *TestLine) Levels() []int {
	var levels []int
	for _, t := range l.Transitions() {
		levels = append(levels, t.Level)
	}
	return levels
}

func (l *TestLine) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// TestOpener hands out TestLines and remembers every line it opened.
type TestOpener struct {
	mu     sync.Mutex
	Opened []*TestLine
}

func (o *TestOpener) Open(key LineKey) (Line, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	l := &TestLine{Key: key}
	o.Opened = append(o.Opened, l)
	return l, nil
}

func (o *TestOpener) Last() *TestLine {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.Opened) == 0 {
		return nil
	}
	return o.Opened[len(o.Opened)-1]
}

func (o *TestOpener) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.Opened)
}
