package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/berfenger/virtualdevices/internal/core/domain"
	"github.com/berfenger/virtualdevices/internal/core/port"
	"github.com/berfenger/virtualdevices/internal/core/schema"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

const (
	SOURCE_OVERRIDE = "override"
	SOURCE_BUILTIN  = "builtin"
	MIXIN_DIR       = "mixins"
	PLUGIN_EXT      = ".lua"

	DEFAULT_EXEC_TIMEOUT = 10 * time.Second
)

var (
	ErrPluginNotFound = errors.New("plugin not found")
	ErrNoConstructor  = errors.New("plugin has no constructor for platform")
	ErrEntityClosed   = errors.New("entity closed")
)

// LoadError reports a plugin or mixin that could not be compiled or executed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("plugin load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// HostAPI exposes Go functionality to plugin code.
type HostAPI interface {
	Register(L *lua.LState, env *Env)
}

var validName = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)

// Loader resolves plugin modules from an operator override directory and a
// built-in directory. The override directory wins.
type Loader struct {
	overrideDir string
	builtinDir  string
	cache       *unitCache
	apis        []HostAPI
	execTimeout time.Duration
	logger      *zap.Logger
}

func NewLoader(overrideDir, builtinDir string, logger *zap.Logger, apis ...HostAPI) *Loader {
	return &Loader{
		overrideDir: overrideDir,
		builtinDir:  builtinDir,
		cache:       newUnitCache(),
		apis:        apis,
		execTimeout: DEFAULT_EXEC_TIMEOUT,
		logger:      logger.With(zap.String("component", "plugin")),
	}
}

func (l *Loader) OverrideDir() string {
	return l.overrideDir
}

func (l *Loader) BuiltinDir() string {
	return l.builtinDir
}

// Resolve executes the named module in a fresh Lua state. Source changes on
// disk are picked up on every call.
func (l *Loader) Resolve(name string) (*Module, error) {
	l.ensureDirs()
	path, source, err := l.locate("", name)
	if err != nil {
		return nil, err
	}
	return l.execute(name, path, source)
}

// List executes every module in both directories and returns those that
// declare at least one platform. Modules that fail to load are skipped. The
// caller owns the returned modules.
func (l *Loader) List() (map[string]*Module, error) {
	l.ensureDirs()

	type candidate struct {
		path   string
		source string
	}
	candidates := make(map[string]candidate)
	for _, d := range l.dirs() {
		matches, err := filepath.Glob(filepath.Join(d.dir, "*"+PLUGIN_EXT))
		if err != nil {
			return nil, err
		}
		for _, path := range matches {
			name := strings.TrimSuffix(filepath.Base(path), PLUGIN_EXT)
			if _, ok := candidates[name]; ok || !validName.MatchString(name) {
				continue
			}
			candidates[name] = candidate{path: path, source: d.source}
		}
	}

	modules := make(map[string]*Module)
	for name, c := range candidates {
		m, err := l.execute(name, c.path, c.source)
		if err != nil {
			l.logger.Warn("plugin: skipping module", zap.String("module", name), zap.Error(err))
			continue
		}
		if len(m.platforms) == 0 {
			m.Close()
			continue
		}
		modules[name] = m
	}
	return modules, nil
}

func (l *Loader) Catalog() ([]domain.PluginInfo, error) {
	modules, err := l.List()
	if err != nil {
		return nil, err
	}
	infos := make([]domain.PluginInfo, 0, len(modules))
	for _, m := range modules {
		infos = append(infos, m.Info())
		m.Close()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (l *Loader) Plugin(name string) (domain.PluginInfo, error) {
	m, err := l.Resolve(name)
	if err != nil {
		return domain.PluginInfo{}, err
	}
	defer m.Close()
	return m.Info(), nil
}

func (l *Loader) Schema(module, platform string) ([]schema.Field, error) {
	m, err := l.Resolve(module)
	if err != nil {
		return nil, err
	}
	defer m.Close()
	return m.Schema(platform)
}

// Construct builds a fresh entity instance of module's class for platform.
func (l *Loader) Construct(ctx context.Context, module, platform string, data map[string]any) (port.Entity, error) {
	m, err := l.Resolve(module)
	if err != nil {
		return nil, err
	}
	cls, ok := m.Class(platform)
	if !ok {
		m.Close()
		return nil, fmt.Errorf("%w: %s.%s", ErrNoConstructor, module, platform)
	}
	inst, err := m.instantiate(ctx, cls, data)
	if err != nil {
		m.Close()
		return nil, err
	}
	return &Entity{module: m, instance: inst}, nil
}

// Invalidate drops the compiled unit for path so the next load recompiles it.
func (l *Loader) Invalidate(path string) {
	l.cache.Invalidate(path)
}

type pluginDir struct {
	dir    string
	source string
}

func (l *Loader) dirs() []pluginDir {
	var dirs []pluginDir
	if l.overrideDir != "" {
		dirs = append(dirs, pluginDir{l.overrideDir, SOURCE_OVERRIDE})
	}
	if l.builtinDir != "" {
		dirs = append(dirs, pluginDir{l.builtinDir, SOURCE_BUILTIN})
	}
	return dirs
}

func (l *Loader) ensureDirs() {
	for _, d := range l.dirs() {
		if err := os.MkdirAll(filepath.Join(d.dir, MIXIN_DIR), 0o755); err != nil {
			l.logger.Warn("plugin: cannot create directory", zap.String("dir", d.dir), zap.Error(err))
		}
	}
}

func (l *Loader) locate(sub, name string) (string, string, error) {
	if !validName.MatchString(name) {
		return "", "", fmt.Errorf("%w: %q", ErrPluginNotFound, name)
	}
	for _, d := range l.dirs() {
		path := filepath.Join(d.dir, sub, name+PLUGIN_EXT)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, d.source, nil
		}
	}
	if sub != "" {
		return "", "", fmt.Errorf("%w: %s/%s", ErrPluginNotFound, sub, name)
	}
	return "", "", fmt.Errorf("%w: %s", ErrPluginNotFound, name)
}

func (l *Loader) execute(name, path, source string) (*Module, error) {
	proto, err := l.cache.Get(path)
	if err != nil {
		return nil, err
	}

	L := lua.NewState()
	m := &Module{
		Name:   name,
		Path:   path,
		Source: source,
		L:      L,
		env:    &Env{Module: name, Logger: l.logger.With(zap.String("plugin", name))},
	}
	for _, api := range l.apis {
		api.Register(L, m.env)
	}
	l.registerCore(m)

	ctx, cancel := context.WithTimeout(context.Background(), l.execTimeout)
	defer cancel()
	L.SetContext(ctx)
	L.Push(L.NewFunctionFromProto(proto))
	err = L.PCall(0, lua.MultRet, nil)
	L.RemoveContext()
	L.SetTop(0)
	if err != nil {
		L.Close()
		return nil, &LoadError{Path: path, Err: err}
	}

	m.readGlobals()
	return m, nil
}

// registerCore installs mixin() and extend() into the module's state.
// A mixin executes at most once per state.
func (l *Loader) registerCore(m *Module) {
	L := m.L
	loaded := make(map[string]lua.LValue)
	loading := make(map[string]bool)

	L.SetGlobal("mixin", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if v, ok := loaded[name]; ok {
			L.Push(v)
			return 1
		}
		if loading[name] {
			L.RaiseError("mixin %s: cyclic dependency", name)
			return 0
		}
		path, _, err := l.locate(MIXIN_DIR, name)
		if err != nil {
			L.RaiseError("mixin %s: %v", name, err)
			return 0
		}
		proto, err := l.cache.Get(path)
		if err != nil {
			L.RaiseError("%v", err)
			return 0
		}
		loading[name] = true
		L.Push(L.NewFunctionFromProto(proto))
		err = L.PCall(0, 1, nil)
		delete(loading, name)
		if err != nil {
			L.RaiseError("mixin %s: %v", name, err)
			return 0
		}
		v := L.Get(-1)
		L.Pop(1)
		loaded[name] = v
		m.Mixins = append(m.Mixins, name)
		L.Push(v)
		return 1
	}))

	L.SetGlobal("extend", L.NewFunction(func(L *lua.LState) int {
		base := L.CheckTable(1)
		cls := L.OptTable(2, L.NewTable())
		mt := L.NewTable()
		mt.RawSetString("__index", base)
		L.SetMetatable(cls, mt)
		cls.RawSetString("__index", cls)
		L.Push(cls)
		return 1
	}))
}
