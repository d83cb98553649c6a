// Package prototype records entity prototype declarations made during the
// data-definition phase and resolves them at spawn time.
//
// Prototype keys are global: "<mod id>:<local name>". Keys never collide
// silently and payloads never change after registration, so Resolve can
// hand out a shared reference instead of copying on every spawn.
package prototype

import (
	"fmt"
	"sort"
	"strings"

	"github.com/louisbranch/rengine/internal/modding/def"
)

// Registrar validates and stores entity prototypes. The zero value is not
// usable; call New.
type Registrar struct {
	protos map[string]map[string]any
	frozen bool
}

// New creates an empty registrar accepting registrations.
func New() *Registrar {
	return &Registrar{protos: map[string]map[string]any{}}
}

// Key composes the global prototype key for a mod-local name.
func Key(modID, localName string) string {
	return modID + ":" + localName
}

// Register stores payload under Key(modID, localName). The payload must be
// a mapping of component data within the definition value domain; it is
// deep-copied in, so the caller keeps no live reference into the registrar.
//
// Registration fails with def.ErrEntityAlreadyRegistered when the key is
// taken and with def.ErrPhaseViolation after the data-definition phase has
// closed. Re-registration is a conflict, never an update.
func (r *Registrar) Register(modID, localName string, payload map[string]any) error {
	if r.frozen {
		return fmt.Errorf("register entity %q: %w", Key(modID, localName), def.ErrPhaseViolation)
	}
	if strings.TrimSpace(modID) == "" {
		return fmt.Errorf("%w: mod id is required", def.ErrMalformedDefinition)
	}
	if strings.TrimSpace(localName) == "" {
		return fmt.Errorf("%w: prototype name is required", def.ErrMalformedDefinition)
	}
	if payload == nil {
		return fmt.Errorf("%w: prototype payload is required", def.ErrMalformedDefinition)
	}
	if err := def.Validate(payload); err != nil {
		return fmt.Errorf("prototype %q: %w", Key(modID, localName), err)
	}

	key := Key(modID, localName)
	if _, exists := r.protos[key]; exists {
		return fmt.Errorf("prototype %q: %w", key, def.ErrEntityAlreadyRegistered)
	}
	r.protos[key] = def.DeepCopy(payload).(map[string]any)
	return nil
}

// Resolve returns the payload registered under key, or def.ErrNotFound.
// The returned value is a shared read-only view; payloads are immutable
// once the registrar freezes, so no copy is taken on the spawn path.
func (r *Registrar) Resolve(key string) (map[string]any, error) {
	payload, ok := r.protos[key]
	if !ok {
		return nil, fmt.Errorf("prototype %q: %w", key, def.ErrNotFound)
	}
	return payload, nil
}

// Freeze closes the registrar for registration. Called by the dispatcher
// when the data-definition phase ends.
func (r *Registrar) Freeze() {
	r.frozen = true
}

// Frozen reports whether the registrar has been closed for registration.
func (r *Registrar) Frozen() bool {
	return r.frozen
}

// Keys returns every registered prototype key in sorted order.
func (r *Registrar) Keys() []string {
	keys := make([]string, 0, len(r.protos))
	for key := range r.protos {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
