package modbuscoil

import (
	"errors"
	"sync"
	"time"
)

type coilAddr struct {
	unit uint8
	addr uint16
}

// TestServer is an in-memory coil table shared by the clients it dials.
type TestServer struct {
	mu    sync.Mutex
	coils map[coilAddr]bool
	Dials int
	Fail  bool
}

func NewTestServer() *TestServer {
	return &TestServer{coils: make(map[coilAddr]bool)}
}

func (s *TestServer) Dialer() Dialer {
	return func(url string, timeout time.Duration) (CoilClient, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.Dials++
		return &testClient{server: s}, nil
	}
}

func (s *TestServer) Coil(unit uint8, addr uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coils[coilAddr{unit, addr}]
}

type testClient struct {
	server *TestServer
	unit   uint8
}

func (c *testClient) Open() error  { return nil }
func (c *testClient) Close() error { return nil }

func (c *testClient) SetUnitId(id uint8) error {
	c.unit = id
	return nil
}

func (c *testClient) ReadCoil(addr uint16) (bool, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if c.server.Fail {
		return false, errors.New("request timed out")
	}
	return c.server.coils[coilAddr{c.unit, addr}], nil
}

func (c *testClient) WriteCoil(addr uint16, value bool) error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if c.server.Fail {
		return errors.New("request timed out")
	}
	c.server.coils[coilAddr{c.unit, addr}] = value
	return nil
}
