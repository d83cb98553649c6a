// Package catalog exports a loaded mod set's assembled definitions and
// prototypes to a store, so external tooling can inspect or diff the
// result of a load without embedding the engine.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/louisbranch/rengine/internal/modding/prototype"
	"github.com/louisbranch/rengine/internal/modding/registry"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// Definition is one registry entry flattened for storage.
type Definition struct {
	Category string
	ModID    string
	Name     string
	Payload  any
}

// Prototype is one registered entity prototype flattened for storage.
type Prototype struct {
	Key     string
	Payload map[string]any
}

// Store persists catalog records.
type Store interface {
	PutDefinition(ctx context.Context, def Definition) error
	PutPrototype(ctx context.Context, proto Prototype) error
	ListDefinitions(ctx context.Context) ([]Definition, error)
	GetPrototype(ctx context.Context, key string) (Prototype, error)
}

// Export writes every definition and prototype of a loaded mod set to the
// store in deterministic order.
func Export(ctx context.Context, store Store, table registry.Table, protos *prototype.Registrar) error {
	if store == nil {
		return errors.New("store is required")
	}

	for _, category := range sortedKeys(table) {
		mods := table[category]
		for _, modID := range sortedKeys(mods) {
			names := mods[modID]
			for _, name := range sortedKeys(names) {
				def := Definition{
					Category: category,
					ModID:    modID,
					Name:     name,
					Payload:  names[name],
				}
				if err := store.PutDefinition(ctx, def); err != nil {
					return fmt.Errorf("export definition %s/%s/%s: %w", category, modID, name, err)
				}
			}
		}
	}

	if protos == nil {
		return nil
	}
	for _, key := range protos.Keys() {
		payload, err := protos.Resolve(key)
		if err != nil {
			return fmt.Errorf("export prototype %s: %w", key, err)
		}
		if err := store.PutPrototype(ctx, Prototype{Key: key, Payload: payload}); err != nil {
			return fmt.Errorf("export prototype %s: %w", key, err)
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
