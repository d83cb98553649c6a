// Package modding loads independently authored script packages and
// dispatches their lifecycle at simulation boundaries.
//
// The dispatcher drives the whole mod set through a two-phase load
// protocol. During the data-definition phase each mod, in discovery order,
// may extend the shared registry and register entity prototypes. The phase
// is all-or-nothing: a fatal error in any mod discards the entire load
// attempt, so later code never observes a partially populated registry.
// During the control phase the registry is frozen; mods read it back and
// install lifecycle callbacks, and a failing mod is skipped without
// stopping its siblings.
package modding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/louisbranch/rengine/internal/modding/def"
	"github.com/louisbranch/rengine/internal/modding/prototype"
	"github.com/louisbranch/rengine/internal/modding/registry"
	"github.com/louisbranch/rengine/internal/modding/script"
)

// Version is the engine version identifier exposed to mod scripts.
const Version = "0.3.0"

// State is the load state of the mod set as a whole, not of any single mod.
type State string

const (
	StateUnloaded     State = "unloaded"
	StateDataPhase    State = "data_phase"
	StateControlPhase State = "control_phase"
	StateRunning      State = "running"
	StateStopping     State = "stopping"
	StateStopped      State = "stopped"

	// StateFailed is terminal: the data-definition phase aborted and the
	// registry was discarded.
	StateFailed State = "failed"
)

// Config describes a mod set load attempt.
type Config struct {
	// Descriptors list the mods in discovery order.
	Descriptors []Descriptor
	// LibName overrides the host library global name. Defaults to
	// script.DefaultLibName.
	LibName string
	// Version overrides the version string exposed to scripts. Defaults to
	// Version.
	Version string
	// Report receives best-effort errors from the control phase and from
	// lifecycle callbacks. Defaults to logging.
	Report func(modID string, err error)
}

// Mods owns the registry, the prototype registrar and one script context
// per mod for the duration of a load attempt.
type Mods struct {
	descriptors []Descriptor
	libName     string
	version     string
	report      func(modID string, err error)

	state    State
	registry *registry.Registry
	protos   *prototype.Registrar
	hosts    map[string]*script.Host
}

// New validates the descriptor list and returns an unloaded mod set.
func New(cfg Config) (*Mods, error) {
	if len(cfg.Descriptors) == 0 {
		return nil, errors.New("at least one mod descriptor is required")
	}
	seen := make(map[string]bool, len(cfg.Descriptors))
	for _, d := range cfg.Descriptors {
		if d.ID == "" {
			return nil, errors.New("mod descriptor missing id")
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("duplicate mod id %q", d.ID)
		}
		seen[d.ID] = true
	}
	if cfg.LibName == "" {
		cfg.LibName = script.DefaultLibName
	}
	if cfg.Version == "" {
		cfg.Version = Version
	}
	if cfg.Report == nil {
		cfg.Report = func(modID string, err error) {
			log.Printf("mod %s: %v", modID, err)
		}
	}
	return &Mods{
		descriptors: cfg.Descriptors,
		libName:     cfg.LibName,
		version:     cfg.Version,
		report:      cfg.Report,
		state:       StateUnloaded,
	}, nil
}

// State returns the mod set's current lifecycle state.
func (m *Mods) State() State {
	return m.state
}

// Table returns a snapshot of the assembled registry, or nil when no load
// attempt has completed its data phase or the attempt failed.
func (m *Mods) Table() registry.Table {
	if m.registry == nil {
		return nil
	}
	return m.registry.Table()
}

// Lookup reads one definition back from the registry.
func (m *Mods) Lookup(category, modID, name string) (any, error) {
	if m.registry == nil {
		return nil, fmt.Errorf("%s/%s/%s: %w", category, modID, name, def.ErrNotFound)
	}
	return m.registry.Lookup(category, modID, name)
}

// Resolve returns the payload registered under a prototype key. This is
// the single call the ECS world makes into the modding layer at spawn
// time.
func (m *Mods) Resolve(key string) (map[string]any, error) {
	if m.protos == nil {
		return nil, fmt.Errorf("prototype %q: %w", key, def.ErrNotFound)
	}
	return m.protos.Resolve(key)
}

// Prototypes returns the registrar for spawn-time resolution, or nil when
// the load attempt failed.
func (m *Mods) Prototypes() *prototype.Registrar {
	return m.protos
}

// LoadData runs every mod's data-phase scripts in discovery order. Any
// definition conflict, malformed definition, phase violation or script
// error is fatal: the whole attempt is discarded and the mod set lands in
// StateFailed with nothing registered.
func (m *Mods) LoadData(ctx context.Context) error {
	if m.state != StateUnloaded {
		return fmt.Errorf("load data in state %s: %w", m.state, def.ErrPhaseViolation)
	}
	m.state = StateDataPhase
	m.registry = registry.New()
	m.protos = prototype.New()
	m.hosts = make(map[string]*script.Host, len(m.descriptors))

	for _, d := range m.descriptors {
		host, err := script.New(script.Config{
			ModID:      d.ID,
			LibName:    m.libName,
			Version:    m.version,
			Registry:   m.registry,
			Prototypes: m.protos,
		})
		if err != nil {
			m.discard()
			return fmt.Errorf("mod %s: %w", d.ID, err)
		}
		m.hosts[d.ID] = host

		for _, path := range d.DataScripts {
			if err := ctx.Err(); err != nil {
				m.discard()
				return fmt.Errorf("data phase aborted: %w", err)
			}
			if err := host.ExecFile(path); err != nil {
				m.discard()
				return &ScriptError{ModID: d.ID, Script: filepath.Base(path), Err: err}
			}
		}

		// Callback slots belong to the control phase; installing one from
		// a data script is a phase violation and fatal like any other.
		for _, hook := range []string{script.HookStart, script.HookStop} {
			if host.HookInstalled(hook) {
				m.discard()
				return fmt.Errorf("mod %s: %s installed during data phase: %w", d.ID, hook, def.ErrPhaseViolation)
			}
		}
	}
	return nil
}

// RunControl freezes the registry and registrar, then runs every mod's
// control-phase scripts in discovery order. A failing script skips the
// mod's remaining control scripts and is reported; sibling mods still run.
func (m *Mods) RunControl(ctx context.Context) error {
	if m.state != StateDataPhase {
		return fmt.Errorf("run control in state %s: %w", m.state, def.ErrPhaseViolation)
	}
	m.registry.Freeze()
	m.protos.Freeze()
	m.state = StateControlPhase

	for _, d := range m.descriptors {
		host := m.hosts[d.ID]
		for _, path := range d.ControlScripts {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("control phase aborted: %w", err)
			}
			if err := host.ExecFile(path); err != nil {
				m.report(d.ID, &ScriptError{ModID: d.ID, Script: filepath.Base(path), Err: err})
				break
			}
		}
	}
	return nil
}

// Start enters the running state and invokes every mod's on_start callback
// in discovery order. Callback errors are reported per mod and never block
// sibling callbacks.
func (m *Mods) Start(ctx context.Context) error {
	if m.state != StateControlPhase {
		return fmt.Errorf("start in state %s: %w", m.state, def.ErrPhaseViolation)
	}
	m.state = StateRunning

	for _, d := range m.descriptors {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("start aborted: %w", err)
		}
		if err := m.hosts[d.ID].CallHook(script.HookStart); err != nil {
			m.report(d.ID, err)
		}
	}
	return nil
}

// Stop invokes every mod's on_stop callback in reverse discovery order,
// then releases all script contexts. Callback errors are reported per mod
// without blocking remaining teardown.
func (m *Mods) Stop(ctx context.Context) error {
	if m.state != StateRunning {
		return fmt.Errorf("stop in state %s: %w", m.state, def.ErrPhaseViolation)
	}
	m.state = StateStopping

	for i := len(m.descriptors) - 1; i >= 0; i-- {
		d := m.descriptors[i]
		if err := m.hosts[d.ID].CallHook(script.HookStop); err != nil {
			m.report(d.ID, err)
		}
	}
	m.closeHosts()
	m.state = StateStopped
	return nil
}

// discard rolls back a failed load attempt: no partially registered
// definitions or prototypes stay observable.
func (m *Mods) discard() {
	m.closeHosts()
	m.registry = nil
	m.protos = nil
	m.state = StateFailed
}

func (m *Mods) closeHosts() {
	for _, host := range m.hosts {
		host.Close()
	}
	m.hosts = nil
}
