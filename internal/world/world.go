// Package world provides a minimal entity-component store that
// materializes entities from registered prototypes.
//
// The world runs after the mod set's control phase, when the prototype
// registrar has become immutable, so resolve calls need no
// synchronization. Spawning copies the prototype payload into the entity's
// component map; entities are mutable, prototypes never are.
package world

import (
	"fmt"

	"github.com/louisbranch/rengine/internal/modding/def"
)

// EntityID identifies a spawned entity. Ids are never reused within a
// world instance.
type EntityID uint64

// Resolver looks up a prototype payload by its global key. Satisfied by
// the prototype registrar and by the mod dispatcher.
type Resolver interface {
	Resolve(key string) (map[string]any, error)
}

// World stores spawned entities and their component data.
type World struct {
	resolver Resolver
	nextID   EntityID
	entities map[EntityID]map[string]any
}

// New creates an empty world spawning from the given resolver.
func New(resolver Resolver) *World {
	return &World{
		resolver: resolver,
		nextID:   1,
		entities: map[EntityID]map[string]any{},
	}
}

// Spawn materializes an entity from a registered prototype key. The
// prototype's top-level entries become the entity's components, copied so
// entity mutation never reaches the shared prototype payload. A missing
// key propagates def.ErrNotFound.
func (w *World) Spawn(prototypeKey string) (EntityID, error) {
	payload, err := w.resolver.Resolve(prototypeKey)
	if err != nil {
		return 0, fmt.Errorf("spawn %q: %w", prototypeKey, err)
	}

	id := w.nextID
	w.nextID++
	w.entities[id] = def.DeepCopy(payload).(map[string]any)
	return id, nil
}

// Despawn removes an entity. It reports whether the entity existed.
func (w *World) Despawn(id EntityID) bool {
	if _, ok := w.entities[id]; !ok {
		return false
	}
	delete(w.entities, id)
	return true
}

// Component returns one of an entity's components by name.
func (w *World) Component(id EntityID, name string) (any, bool) {
	components, ok := w.entities[id]
	if !ok {
		return nil, false
	}
	value, ok := components[name]
	return value, ok
}

// SetComponent stores component data on a live entity.
func (w *World) SetComponent(id EntityID, name string, value any) error {
	components, ok := w.entities[id]
	if !ok {
		return fmt.Errorf("entity %d: %w", id, def.ErrNotFound)
	}
	components[name] = value
	return nil
}

// Count returns the number of live entities.
func (w *World) Count() int {
	return len(w.entities)
}
