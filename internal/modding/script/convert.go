package script

import (
	"fmt"
	"math"

	"github.com/Shopify/go-lua"

	"github.com/louisbranch/rengine/internal/modding/def"
)

// maxConvertDepth bounds conversion recursion. Lua tables can reference
// themselves; a definition nested deeper than this is rejected instead of
// overflowing the Go stack.
const maxConvertDepth = 100

// toGoValue converts the Lua value at index into the definition value
// domain. Tables with contiguous integer keys 1..n become []any, all other
// tables become map[string]any with string keys required.
func toGoValue(l *lua.State, index, depth int) (any, error) {
	if depth > maxConvertDepth {
		return nil, fmt.Errorf("%w: value nested deeper than %d levels", def.ErrMalformedDefinition, maxConvertDepth)
	}
	switch l.TypeOf(index) {
	case lua.TypeString:
		value, _ := l.ToString(index)
		return value, nil
	case lua.TypeNumber:
		value, _ := l.ToNumber(index)
		return normalizeNumber(value), nil
	case lua.TypeBoolean:
		return l.ToBoolean(index), nil
	case lua.TypeTable:
		return tableToGoValue(l, index, depth)
	default:
		return nil, fmt.Errorf("%w: unsupported lua value of type %s", def.ErrMalformedDefinition, lua.TypeNameOf(l, index))
	}
}

// tableToGoValue converts the Lua table at index, choosing between the
// sequence and mapping representations.
func tableToGoValue(l *lua.State, index, depth int) (any, error) {
	index = l.AbsIndex(index)

	isArray := true
	maxIndex := 0
	count := 0
	l.PushNil()
	for l.Next(index) {
		if isArray {
			if l.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := l.ToInteger(-2); ok && idx > 0 {
				count++
				if idx > maxIndex {
					maxIndex = idx
				}
			} else {
				isArray = false
			}
		}
		l.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		result := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			l.RawGetInt(index, i)
			item, err := toGoValue(l, -1, depth+1)
			l.Pop(1)
			if err != nil {
				return nil, err
			}
			result = append(result, item)
		}
		return result, nil
	}

	return tableToGoMap(l, index, depth)
}

// tableToGoMap converts the Lua table at index into a string-keyed mapping.
// Non-string keys outside a contiguous sequence are rejected rather than
// silently dropped.
func tableToGoMap(l *lua.State, index, depth int) (map[string]any, error) {
	index = l.AbsIndex(index)
	output := map[string]any{}

	l.PushNil()
	for l.Next(index) {
		if l.TypeOf(-2) != lua.TypeString {
			l.Pop(2)
			return nil, fmt.Errorf("%w: table keys must be strings", def.ErrMalformedDefinition)
		}
		key, _ := l.ToString(-2)
		value, err := toGoValue(l, -1, depth+1)
		if err != nil {
			l.Pop(2)
			return nil, err
		}
		output[key] = value
		l.Pop(1)
	}
	return output, nil
}

// pushValue builds a Lua value from a definition value. The input comes
// from registry snapshots, which stay within the definition domain.
func pushValue(l *lua.State, v any) {
	switch t := v.(type) {
	case string:
		l.PushString(t)
	case bool:
		l.PushBoolean(t)
	case int:
		l.PushInteger(t)
	case float64:
		l.PushNumber(t)
	case []any:
		l.CreateTable(len(t), 0)
		for i, item := range t {
			pushValue(l, item)
			l.RawSetInt(-2, i+1)
		}
	case map[string]any:
		l.CreateTable(0, len(t))
		for key, item := range t {
			pushValue(l, item)
			l.SetField(-2, key)
		}
	default:
		l.PushNil()
	}
}

// normalizeNumber collapses whole Lua numbers to int so definitions authored
// as integers read back as integers.
func normalizeNumber(value float64) any {
	if math.Mod(value, 1) == 0 {
		return int(value)
	}
	return value
}
