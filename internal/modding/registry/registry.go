// Package registry implements the shared data-definition table that mods
// extend during the data-definition phase.
//
// The table is three levels deep: category, then mod id, then definition
// name. Mod ids are supplied by the dispatcher, never by scripts, so a mod
// cannot write into another mod's namespace. A registry instance is owned by
// a single load attempt; a failed load discards the instance instead of
// repairing it.
package registry

import (
	"fmt"
	"strings"

	"github.com/louisbranch/rengine/internal/modding/def"
)

// Table is the full registry mapping: category -> mod id -> name -> value.
type Table map[string]map[string]map[string]any

// Registry stores definition values contributed by mods. The zero value is
// not usable; call New.
type Registry struct {
	table  Table
	frozen bool
}

// New creates an empty registry accepting extensions.
func New() *Registry {
	return &Registry{table: Table{}}
}

// Extend inserts each definition under (category, modID, definition name).
// Every definition requires a non-empty string "name" field. The call is
// atomic: all definitions are validated before any is inserted, so a failed
// call registers nothing.
//
// A name already present under the same (category, modID) fails with
// def.ErrDuplicateDefinition; it is never overwritten or merged. Callers
// that want a variant read back the existing value, modify the copy and
// extend under a new name.
func (r *Registry) Extend(category, modID string, defs []map[string]any) error {
	if r.frozen {
		return fmt.Errorf("extend %q: %w", category, def.ErrPhaseViolation)
	}
	if strings.TrimSpace(category) == "" {
		return fmt.Errorf("%w: category is required", def.ErrMalformedDefinition)
	}
	if strings.TrimSpace(modID) == "" {
		return fmt.Errorf("%w: mod id is required", def.ErrMalformedDefinition)
	}

	names := make([]string, len(defs))
	seen := make(map[string]bool, len(defs))
	for i, d := range defs {
		name, err := definitionName(d)
		if err != nil {
			return fmt.Errorf("%s/%s: %w", category, modID, err)
		}
		if err := def.Validate(d); err != nil {
			return fmt.Errorf("%s/%s/%s: %w", category, modID, name, err)
		}
		if seen[name] || r.has(category, modID, name) {
			return fmt.Errorf("%s/%s/%s: %w", category, modID, name, def.ErrDuplicateDefinition)
		}
		seen[name] = true
		names[i] = name
	}

	for i, d := range defs {
		r.put(category, modID, names[i], def.DeepCopy(d))
	}
	return nil
}

// Lookup returns a deep copy of the value stored under (category, modID,
// name), or def.ErrNotFound when no such definition exists.
func (r *Registry) Lookup(category, modID, name string) (any, error) {
	if !r.has(category, modID, name) {
		return nil, fmt.Errorf("%s/%s/%s: %w", category, modID, name, def.ErrNotFound)
	}
	return def.DeepCopy(r.table[category][modID][name]), nil
}

// Table returns a deep copy of the entire registry as of the call. Holding
// the result never exposes engine-owned state to mutation.
func (r *Registry) Table() Table {
	out := make(Table, len(r.table))
	for category, mods := range r.table {
		outMods := make(map[string]map[string]any, len(mods))
		for modID, names := range mods {
			outNames := make(map[string]any, len(names))
			for name, value := range names {
				outNames[name] = def.DeepCopy(value)
			}
			outMods[modID] = outNames
		}
		out[category] = outMods
	}
	return out
}

// Freeze closes the registry for mutation. Any Extend call after Freeze
// fails with def.ErrPhaseViolation. Called by the dispatcher when the
// data-definition phase ends.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Frozen reports whether the registry has been closed for mutation.
func (r *Registry) Frozen() bool {
	return r.frozen
}

func (r *Registry) has(category, modID, name string) bool {
	mods, ok := r.table[category]
	if !ok {
		return false
	}
	names, ok := mods[modID]
	if !ok {
		return false
	}
	_, ok = names[name]
	return ok
}

func (r *Registry) put(category, modID, name string, value any) {
	mods, ok := r.table[category]
	if !ok {
		mods = map[string]map[string]any{}
		r.table[category] = mods
	}
	names, ok := mods[modID]
	if !ok {
		names = map[string]any{}
		mods[modID] = names
	}
	names[name] = value
}

func definitionName(d map[string]any) (string, error) {
	if d == nil {
		return "", fmt.Errorf("%w: definition is not a table", def.ErrMalformedDefinition)
	}
	raw, ok := d["name"]
	if !ok {
		return "", fmt.Errorf("%w: missing required field \"name\"", def.ErrMalformedDefinition)
	}
	name, ok := raw.(string)
	if !ok || strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: field \"name\" must be a non-empty string", def.ErrMalformedDefinition)
	}
	return name, nil
}
