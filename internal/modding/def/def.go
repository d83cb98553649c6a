// Package def models the definition values mods contribute during the
// data-definition phase, along with the error conditions shared by the
// registry, the prototype registrar and the script bridge.
//
// A definition value is a dynamic tree restricted to strings, numbers,
// booleans, []any sequences and map[string]any mappings. The restriction
// mirrors what survives the Lua boundary; anything else is malformed.
package def

import (
	"errors"
	"fmt"
	"reflect"
)

// Error conditions raised by the data-definition layer. Callers branch on
// these with errors.Is; script and dispatcher errors wrap them with mod and
// name context.
var (
	// ErrDuplicateDefinition indicates a definition name collision within a
	// mod's own (category, mod) namespace.
	ErrDuplicateDefinition = errors.New("definition name already registered")

	// ErrEntityAlreadyRegistered indicates a prototype key collision.
	ErrEntityAlreadyRegistered = errors.New("entity prototype already registered")

	// ErrPhaseViolation indicates a registry-mutating call made after the
	// data-definition phase closed, or a lifecycle callback installed
	// outside the control phase.
	ErrPhaseViolation = errors.New("operation not allowed in current phase")

	// ErrNotFound indicates a lookup or resolve miss. It is a normal,
	// recoverable result rather than a failure.
	ErrNotFound = errors.New("record not found")

	// ErrMalformedDefinition indicates a definition missing a required field
	// or carrying a value outside the definition value domain.
	ErrMalformedDefinition = errors.New("malformed definition")
)

// Validate checks that v stays within the definition value domain: string,
// bool, int, float64, []any and map[string]any, arbitrarily nested. Cyclic
// values are accepted; validation visits each distinct node once.
func Validate(v any) error {
	return validate(v, map[refKey]bool{})
}

func validate(v any, seen map[refKey]bool) error {
	switch t := v.(type) {
	case string, bool, int, float64:
		return nil
	case []any:
		key := sliceKey(t)
		if seen[key] {
			return nil
		}
		seen[key] = true
		for _, item := range t {
			if err := validate(item, seen); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		key := mapKey(t)
		if seen[key] {
			return nil
		}
		seen[key] = true
		for _, item := range t {
			if err := validate(item, seen); err != nil {
				return err
			}
		}
		return nil
	case nil:
		return fmt.Errorf("%w: nil value", ErrMalformedDefinition)
	default:
		return fmt.Errorf("%w: unsupported value type %T", ErrMalformedDefinition, v)
	}
}

// DeepCopy returns a clone of v that shares no mutable storage with the
// original. Substructure reachable through multiple paths maps to a single
// shared clone, so aliasing topology is preserved and cyclic inputs
// terminate. Scalars are returned as-is.
func DeepCopy(v any) any {
	return deepCopy(v, map[refKey]any{})
}

func deepCopy(v any, seen map[refKey]any) any {
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return []any{}
		}
		key := sliceKey(t)
		if clone, ok := seen[key]; ok {
			return clone
		}
		out := make([]any, len(t))
		// Register before descending so cycles resolve to the clone.
		seen[key] = out
		for i := range t {
			out[i] = deepCopy(t[i], seen)
		}
		return out
	case map[string]any:
		key := mapKey(t)
		if clone, ok := seen[key]; ok {
			return clone
		}
		out := make(map[string]any, len(t))
		seen[key] = out
		for k, item := range t {
			out[k] = deepCopy(item, seen)
		}
		return out
	default:
		return v
	}
}

// refKey identifies a mutable node by storage address. Slices carry their
// length so two slices over the same backing array but with different
// bounds are not conflated.
type refKey struct {
	ptr    uintptr
	length int
}

func mapKey(m map[string]any) refKey {
	return refKey{ptr: reflect.ValueOf(m).Pointer(), length: -1}
}

func sliceKey(s []any) refKey {
	return refKey{ptr: reflect.ValueOf(s).Pointer(), length: len(s)}
}
