package plugin

import (
	"bytes"
	"crypto/sha256"
	"os"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"golang.org/x/sync/singleflight"
)

type compiledUnit struct {
	modTime time.Time
	size    int64
	hash    [sha256.Size]byte
	proto   *lua.FunctionProto
}

// unitCache holds compiled chunks by path. A unit is reused while the file's
// mtime and size are unchanged; otherwise the source is re-read and only
// recompiled when its hash differs.
type unitCache struct {
	mu       sync.Mutex
	units    map[string]*compiledUnit
	group    singleflight.Group
	compiles int
}

func newUnitCache() *unitCache {
	return &unitCache{units: make(map[string]*compiledUnit)}
}

func (c *unitCache) Get(path string) (*lua.FunctionProto, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	c.mu.Lock()
	u := c.units[path]
	c.mu.Unlock()
	if u != nil && u.modTime.Equal(info.ModTime()) && u.size == info.Size() {
		return u.proto, nil
	}

	v, err, _ := c.group.Do(path, func() (any, error) {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}
		sum := sha256.Sum256(src)

		c.mu.Lock()
		prev := c.units[path]
		c.mu.Unlock()
		if prev != nil && prev.hash == sum {
			c.store(path, &compiledUnit{modTime: info.ModTime(), size: info.Size(), hash: sum, proto: prev.proto})
			return prev.proto, nil
		}

		proto, err := compile(src, path)
		if err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}
		c.store(path, &compiledUnit{modTime: info.ModTime(), size: info.Size(), hash: sum, proto: proto})
		return proto, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*lua.FunctionProto), nil
}

func (c *unitCache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.units, path)
}

func (c *unitCache) Compiles() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compiles
}

func (c *unitCache) store(path string, u *compiledUnit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev := c.units[path]; prev == nil || prev.proto != u.proto {
		c.compiles++
	}
	c.units[path] = u
}

func compile(src []byte, name string) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(bytes.NewReader(src), name)
	if err != nil {
		return nil, err
	}
	return lua.Compile(chunk, name)
}
