package modbuscoil

import (
	"fmt"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// CoilClient is the subset of a modbus client needed to drive coils.
type CoilClient interface {
	Open() error
	Close() error
	SetUnitId(id uint8) error
	ReadCoil(addr uint16) (bool, error)
	WriteCoil(addr uint16, value bool) error
}

type Dialer func(url string, timeout time.Duration) (CoilClient, error)

func TCPDialer(url string, timeout time.Duration) (CoilClient, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     url,
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Open(); err != nil {
		return nil, err
	}
	return client, nil
}

type pooledClient struct {
	mu     sync.Mutex
	client CoilClient
}

// Pool keeps one open client per server URL. Requests to the same server are
// serialized since the unit id is client state.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*pooledClient
	dial    Dialer
	timeout time.Duration
	logger  *zap.Logger
}

func NewPool(dial Dialer, timeout time.Duration, logger *zap.Logger) *Pool {
	if dial == nil {
		dial = TCPDialer
	}
	return &Pool{
		clients: make(map[string]*pooledClient),
		dial:    dial,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "modbuscoil")),
	}
}

func (p *Pool) WriteCoil(url string, unit uint8, addr uint16, value bool) error {
	return p.with(url, unit, func(c CoilClient) error {
		return c.WriteCoil(addr, value)
	})
}

func (p *Pool) ReadCoil(url string, unit uint8, addr uint16) (bool, error) {
	var value bool
	err := p.with(url, unit, func(c CoilClient) error {
		v, err := c.ReadCoil(addr)
		value = v
		return err
	})
	return value, err
}

func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for url, pc := range p.clients {
		if err := pc.client.Close(); err != nil {
			p.logger.Warn("modbuscoil: close error", zap.String("url", url), zap.Error(err))
		}
	}
	p.clients = make(map[string]*pooledClient)
}

func (p *Pool) with(url string, unit uint8, fn func(CoilClient) error) error {
	pc, err := p.get(url)
	if err != nil {
		return err
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := pc.client.SetUnitId(unit); err != nil {
		return err
	}
	if err := fn(pc.client); err != nil {
		// drop the client so the next call reconnects
		p.drop(url, pc)
		return fmt.Errorf("modbus %s unit %d: %w", url, unit, err)
	}
	return nil
}

// get returns the pooled client for url, dialing without holding the pool
// lock. When two callers race, the first client stored wins.
func (p *Pool) get(url string) (*pooledClient, error) {
	p.mu.Lock()
	pc, ok := p.clients[url]
	p.mu.Unlock()
	if ok {
		return pc, nil
	}

	client, err := p.dial(url, p.timeout)
	if err != nil {
		return nil, fmt.Errorf("modbus connect %s: %w", url, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.clients[url]; ok {
		client.Close()
		return existing, nil
	}
	pc = &pooledClient{client: client}
	p.clients[url] = pc
	p.logger.Debug("modbuscoil: connected", zap.String("url", url))
	return pc, nil
}

func (p *Pool) drop(url string, pc *pooledClient) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clients[url] == pc {
		delete(p.clients, url)
		pc.client.Close()
	}
}
