package modding

import "fmt"

// ScriptError reports a script that failed while loading or running. It
// wraps the underlying cause, so errors.Is still matches the definition
// layer's sentinel conditions through it.
type ScriptError struct {
	// ModID is the mod whose context raised the error.
	ModID string
	// Script is the offending script file.
	Script string
	// Err is the underlying cause.
	Err error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("mod %s: script %s: %v", e.ModID, e.Script, e.Err)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}
