// Package script bridges mod Lua environments to the engine's
// data-definition layer.
//
// Each mod gets its own Host: an isolated Lua state with a host library
// table injected before any script runs. The Go closures behind the host
// functions close over the owning mod's id, so every registry write is
// tagged with the identity of the mod whose context issued it. Scripts
// never pass their own id and cannot write into another mod's namespace.
package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Shopify/go-lua"

	"github.com/louisbranch/rengine/internal/modding/def"
	"github.com/louisbranch/rengine/internal/modding/prototype"
	"github.com/louisbranch/rengine/internal/modding/registry"
)

// Lifecycle callback slots a mod may assign on its host library table.
const (
	HookStart = "on_start"
	HookStop  = "on_stop"
)

// DefaultLibName is the global name of the host library table unless the
// embedding engine overrides it.
const DefaultLibName = "core"

// Config describes one mod's execution context.
type Config struct {
	// ModID is the identity every host call from this context is tagged
	// with. Required.
	ModID string
	// LibName is the global name of the injected host table. Defaults to
	// DefaultLibName.
	LibName string
	// Version is exposed to scripts as <lib>.version.
	Version string
	// Registry receives extend calls. Required.
	Registry *registry.Registry
	// Prototypes receives register_entity calls. Required.
	Prototypes *prototype.Registrar
}

// Host is a capability-scoped handle to one mod's Lua state. It exposes
// only the operations the dispatcher needs; scripts see the injected
// library table instead.
type Host struct {
	modID    string
	libName  string
	state    *lua.State
	registry *registry.Registry
	protos   *prototype.Registrar

	// hostErr records the first typed failure raised by a host function
	// during the current chunk, so callers get the sentinel condition back
	// instead of its flattened Lua error text.
	hostErr error
}

// New constructs an isolated Lua state for one mod and injects the host
// library before returning. No script has run yet when New returns.
func New(cfg Config) (*Host, error) {
	if strings.TrimSpace(cfg.ModID) == "" {
		return nil, errors.New("mod id is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Prototypes == nil {
		return nil, errors.New("prototype registrar is required")
	}
	if cfg.LibName == "" {
		cfg.LibName = DefaultLibName
	}

	l := lua.NewState()
	lua.OpenLibraries(l)

	h := &Host{
		modID:    cfg.ModID,
		libName:  cfg.LibName,
		state:    l,
		registry: cfg.Registry,
		protos:   cfg.Prototypes,
	}
	h.installLibrary(cfg.Version)
	return h, nil
}

// ModID returns the identity this context is scoped to.
func (h *Host) ModID() string {
	return h.modID
}

// Close releases the mod's Lua state. The host is unusable afterwards.
func (h *Host) Close() {
	h.state = nil
}

// ExecFile reads a script file and executes it in the mod's context.
func (h *Host) ExecFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	return h.ExecSource(filepath.Base(path), string(src))
}

// ExecSource executes a script chunk in the mod's context. Host-function
// failures surface as their typed error; plain Lua errors are wrapped with
// the chunk name.
func (h *Host) ExecSource(name, src string) error {
	l := h.state
	if l == nil {
		return errors.New("script context is closed")
	}
	top := l.Top()
	defer l.SetTop(top)

	h.hostErr = nil
	if err := lua.LoadBuffer(l, src, name, ""); err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		if h.hostErr != nil {
			return h.hostErr
		}
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}

// HookInstalled reports whether the mod assigned the named callback slot on
// its host library table.
func (h *Host) HookInstalled(name string) bool {
	l := h.state
	if l == nil {
		return false
	}
	top := l.Top()
	defer l.SetTop(top)

	l.Global(h.libName)
	if l.TypeOf(-1) != lua.TypeTable {
		return false
	}
	l.Field(-1, name)
	return !l.IsNoneOrNil(-1)
}

// CallHook invokes the named callback slot if the mod assigned a function
// to it. A missing slot is a no-op; a callback error is returned without
// poisoning the Lua state.
func (h *Host) CallHook(name string) error {
	l := h.state
	if l == nil {
		return errors.New("script context is closed")
	}
	top := l.Top()
	defer l.SetTop(top)

	l.Global(h.libName)
	if l.TypeOf(-1) != lua.TypeTable {
		return nil
	}
	l.Field(-1, name)
	if !l.IsFunction(-1) {
		return nil
	}
	h.hostErr = nil
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		if h.hostErr != nil {
			return fmt.Errorf("%s: %w", name, h.hostErr)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (h *Host) installLibrary(version string) {
	l := h.state

	l.NewTable()
	l.PushString(version)
	l.SetField(-2, "version")
	l.PushGoFunction(h.registerEntity)
	l.SetField(-2, "register_entity")

	l.NewTable()
	l.PushGoFunction(h.registryExtend)
	l.SetField(-2, "extend")
	l.PushGoFunction(h.registryTable)
	l.SetField(-2, "table")
	l.SetField(-2, "registry")

	l.SetGlobal(h.libName)
}

// registerEntity implements <lib>.register_entity(local_name, payload).
func (h *Host) registerEntity(l *lua.State) int {
	name := lua.CheckString(l, 1)
	if l.TypeOf(2) != lua.TypeTable {
		h.fail(l, fmt.Errorf("%w: entity payload must be a table", def.ErrMalformedDefinition))
		return 0
	}
	value, err := tableToGoValue(l, 2, 0)
	if err != nil {
		h.fail(l, err)
		return 0
	}
	payload, ok := value.(map[string]any)
	if !ok {
		h.fail(l, fmt.Errorf("%w: entity payload must be component data, not a sequence", def.ErrMalformedDefinition))
		return 0
	}
	if err := h.protos.Register(h.modID, name, payload); err != nil {
		h.fail(l, err)
		return 0
	}
	return 0
}

// registryExtend implements <lib>.registry.extend(category, definitions).
func (h *Host) registryExtend(l *lua.State) int {
	category := lua.CheckString(l, 1)
	if l.TypeOf(2) != lua.TypeTable {
		h.fail(l, fmt.Errorf("%w: definitions must be an array of tables", def.ErrMalformedDefinition))
		return 0
	}
	value, err := tableToGoValue(l, 2, 0)
	if err != nil {
		h.fail(l, err)
		return 0
	}
	defs, err := definitionList(value)
	if err != nil {
		h.fail(l, err)
		return 0
	}
	if err := h.registry.Extend(category, h.modID, defs); err != nil {
		h.fail(l, err)
		return 0
	}
	return 0
}

// registryTable implements <lib>.registry.table(). The snapshot pushed into
// Lua is already a deep copy, so scripts can mutate it freely without
// touching engine-owned state.
func (h *Host) registryTable(l *lua.State) int {
	snapshot := h.registry.Table()
	l.CreateTable(0, len(snapshot))
	for category, mods := range snapshot {
		l.CreateTable(0, len(mods))
		for modID, names := range mods {
			l.CreateTable(0, len(names))
			for name, value := range names {
				pushValue(l, value)
				l.SetField(-2, name)
			}
			l.SetField(-2, modID)
		}
		l.SetField(-2, category)
	}
	return 1
}

// fail records the typed error and aborts the current chunk by raising it
// as a Lua error. The dispatcher recovers the typed error from ExecSource.
func (h *Host) fail(l *lua.State, err error) {
	if h.hostErr == nil {
		h.hostErr = err
	}
	lua.Errorf(l, "%s", err.Error())
}

// definitionList converts the extend argument into definition tables. Lua
// cannot distinguish an empty array from an empty map, so an empty table is
// an empty list.
func definitionList(value any) ([]map[string]any, error) {
	switch t := value.(type) {
	case []any:
		defs := make([]map[string]any, len(t))
		for i, item := range t {
			d, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: definition %d is not a table", def.ErrMalformedDefinition, i+1)
			}
			defs[i] = d
		}
		return defs, nil
	case map[string]any:
		if len(t) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: definitions must be an array, not a single table", def.ErrMalformedDefinition)
	default:
		return nil, fmt.Errorf("%w: definitions must be an array of tables", def.ErrMalformedDefinition)
	}
}
