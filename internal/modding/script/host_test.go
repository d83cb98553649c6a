package script

import (
	"errors"
	"reflect"
	"testing"

	"github.com/louisbranch/rengine/internal/modding/def"
	"github.com/louisbranch/rengine/internal/modding/prototype"
	"github.com/louisbranch/rengine/internal/modding/registry"
)

func newTestHost(t *testing.T, modID string, reg *registry.Registry, protos *prototype.Registrar) *Host {
	t.Helper()
	h, err := New(Config{
		ModID:      modID,
		Version:    "9.9.9",
		Registry:   reg,
		Prototypes: protos,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return h
}

// TestExtendTaggedWithModIdentity ensures extend writes land under the
// issuing mod's namespace without the script naming itself.
func TestExtendTaggedWithModIdentity(t *testing.T) {
	reg := registry.New()
	h := newTestHost(t, "modA", reg, prototype.New())

	src := `core.registry.extend("example", {
		{ name = "tree", health = 10, drops = { "wood", "sap" } },
	})`
	if err := h.ExecSource("data.lua", src); err != nil {
		t.Fatalf("ExecSource returned error: %v", err)
	}

	got, err := reg.Lookup("example", "modA", "tree")
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	want := map[string]any{
		"name":   "tree",
		"health": 10,
		"drops":  []any{"wood", "sap"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Lookup = %#v, want %#v", got, want)
	}
}

// TestExtendDuplicateSurfacesTypedError ensures host failures come back as
// the sentinel condition, not flattened Lua error text.
func TestExtendDuplicateSurfacesTypedError(t *testing.T) {
	reg := registry.New()
	h := newTestHost(t, "modA", reg, prototype.New())

	src := `core.registry.extend("example", {{ name = "tree" }})`
	if err := h.ExecSource("data.lua", src); err != nil {
		t.Fatalf("first ExecSource returned error: %v", err)
	}
	err := h.ExecSource("data.lua", src)
	if !errors.Is(err, def.ErrDuplicateDefinition) {
		t.Fatalf("ExecSource error = %v, want ErrDuplicateDefinition", err)
	}
}

// TestExtendMalformedDefinition ensures a definition missing "name" fails
// with the malformed condition and registers nothing.
func TestExtendMalformedDefinition(t *testing.T) {
	reg := registry.New()
	h := newTestHost(t, "modA", reg, prototype.New())

	src := `core.registry.extend("example", {
		{ name = "good" },
		{ health = 5 },
	})`
	err := h.ExecSource("data.lua", src)
	if !errors.Is(err, def.ErrMalformedDefinition) {
		t.Fatalf("ExecSource error = %v, want ErrMalformedDefinition", err)
	}
	if _, err := reg.Lookup("example", "modA", "good"); !errors.Is(err, def.ErrNotFound) {
		t.Fatal("failed extend left a partial insert behind")
	}
}

// TestHostFailureAbortsChunk ensures a failed host call stops the offending
// chunk at the failure point.
func TestHostFailureAbortsChunk(t *testing.T) {
	reg := registry.New()
	h := newTestHost(t, "modA", reg, prototype.New())

	if err := h.ExecSource("data.lua", `core.registry.extend("example", {{ name = "tree" }})`); err != nil {
		t.Fatalf("setup ExecSource returned error: %v", err)
	}
	src := `core.registry.extend("example", {{ name = "tree" }})
	reached = true`
	if err := h.ExecSource("data.lua", src); err == nil {
		t.Fatal("ExecSource returned nil error for duplicate extend")
	}
	if err := h.ExecSource("check.lua", `assert(reached == nil, "chunk continued past host failure")`); err != nil {
		t.Fatalf("chunk continued after aborted host call: %v", err)
	}
}

// TestRegisterEntityRoundTrip ensures register_entity lands in the
// registrar under the composed key.
func TestRegisterEntityRoundTrip(t *testing.T) {
	protos := prototype.New()
	h := newTestHost(t, "modA", registry.New(), protos)

	src := `core.register_entity("plant", { sprite = "plant", health = 3 })`
	if err := h.ExecSource("data.lua", src); err != nil {
		t.Fatalf("ExecSource returned error: %v", err)
	}

	payload, err := protos.Resolve("modA:plant")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	want := map[string]any{"sprite": "plant", "health": 3}
	if !reflect.DeepEqual(payload, want) {
		t.Fatalf("Resolve = %#v, want %#v", payload, want)
	}
}

// TestRegisterEntityDuplicateKey ensures key collisions surface typed.
func TestRegisterEntityDuplicateKey(t *testing.T) {
	protos := prototype.New()
	h := newTestHost(t, "modA", registry.New(), protos)

	src := `core.register_entity("plant", { health = 3 })`
	if err := h.ExecSource("data.lua", src); err != nil {
		t.Fatalf("first ExecSource returned error: %v", err)
	}
	err := h.ExecSource("data.lua", src)
	if !errors.Is(err, def.ErrEntityAlreadyRegistered) {
		t.Fatalf("ExecSource error = %v, want ErrEntityAlreadyRegistered", err)
	}
}

// TestRegistryTableCrossModReadBack ensures a later mod's context observes
// earlier mods' extensions through table().
func TestRegistryTableCrossModReadBack(t *testing.T) {
	reg := registry.New()
	protos := prototype.New()

	hostA := newTestHost(t, "modA", reg, protos)
	if err := hostA.ExecSource("data.lua", `core.registry.extend("cat", {{ name = "t1", v = 7 }})`); err != nil {
		t.Fatalf("modA ExecSource returned error: %v", err)
	}

	hostB := newTestHost(t, "modB", reg, protos)
	src := `local t = core.registry.table()
	assert(t.cat.modA.t1.v == 7, "cross-mod definition not visible")`
	if err := hostB.ExecSource("init.lua", src); err != nil {
		t.Fatalf("modB ExecSource returned error: %v", err)
	}
}

// TestRegistryTableIsDetachedCopy ensures mutating a table() result does
// not alter engine-owned state.
func TestRegistryTableIsDetachedCopy(t *testing.T) {
	reg := registry.New()
	h := newTestHost(t, "modA", reg, prototype.New())

	if err := h.ExecSource("data.lua", `core.registry.extend("cat", {{ name = "t1", v = 7 }})`); err != nil {
		t.Fatalf("ExecSource returned error: %v", err)
	}
	src := `local t = core.registry.table()
	t.cat.modA.t1.v = 99
	local again = core.registry.table()
	assert(again.cat.modA.t1.v == 7, "registry mutated through table() result")`
	if err := h.ExecSource("init.lua", src); err != nil {
		t.Fatalf("ExecSource returned error: %v", err)
	}
}

// TestVersionExposed ensures the host table carries the engine version.
func TestVersionExposed(t *testing.T) {
	h := newTestHost(t, "modA", registry.New(), prototype.New())
	if err := h.ExecSource("data.lua", `assert(core.version == "9.9.9")`); err != nil {
		t.Fatalf("ExecSource returned error: %v", err)
	}
}

// TestHookInstallAndCall ensures callback slots are detected and invoked.
func TestHookInstallAndCall(t *testing.T) {
	h := newTestHost(t, "modA", registry.New(), prototype.New())

	if h.HookInstalled(HookStart) {
		t.Fatal("HookInstalled true before any script ran")
	}
	src := `core.on_start = function() hook_ran = true end`
	if err := h.ExecSource("init.lua", src); err != nil {
		t.Fatalf("ExecSource returned error: %v", err)
	}
	if !h.HookInstalled(HookStart) {
		t.Fatal("HookInstalled false after assignment")
	}
	if h.HookInstalled(HookStop) {
		t.Fatal("HookInstalled true for unassigned slot")
	}

	if err := h.CallHook(HookStart); err != nil {
		t.Fatalf("CallHook returned error: %v", err)
	}
	if err := h.ExecSource("check.lua", `assert(hook_ran == true)`); err != nil {
		t.Fatalf("hook did not run: %v", err)
	}
}

// TestCallHookMissingSlotIsNoop ensures an unassigned slot is not an error.
func TestCallHookMissingSlotIsNoop(t *testing.T) {
	h := newTestHost(t, "modA", registry.New(), prototype.New())
	if err := h.CallHook(HookStop); err != nil {
		t.Fatalf("CallHook returned error: %v", err)
	}
}

// TestCallHookReportsCallbackError ensures callback failures come back to
// the dispatcher.
func TestCallHookReportsCallbackError(t *testing.T) {
	h := newTestHost(t, "modA", registry.New(), prototype.New())
	if err := h.ExecSource("init.lua", `core.on_stop = function() error("teardown boom") end`); err != nil {
		t.Fatalf("ExecSource returned error: %v", err)
	}
	if err := h.CallHook(HookStop); err == nil {
		t.Fatal("CallHook returned nil error for failing callback")
	}
}

// TestExtendAfterFreezeIsPhaseViolation ensures a control-phase extend is
// rejected through the bridge.
func TestExtendAfterFreezeIsPhaseViolation(t *testing.T) {
	reg := registry.New()
	h := newTestHost(t, "modA", reg, prototype.New())
	reg.Freeze()

	err := h.ExecSource("init.lua", `core.registry.extend("cat", {{ name = "late" }})`)
	if !errors.Is(err, def.ErrPhaseViolation) {
		t.Fatalf("ExecSource error = %v, want ErrPhaseViolation", err)
	}
}

// TestScriptErrorWrappedWithChunkName ensures plain Lua errors carry the
// script name for diagnostics.
func TestScriptErrorWrappedWithChunkName(t *testing.T) {
	h := newTestHost(t, "modA", registry.New(), prototype.New())
	err := h.ExecSource("broken.lua", `error("boom")`)
	if err == nil {
		t.Fatal("ExecSource returned nil error for raising chunk")
	}
}

// TestExtendRejectsNonStringKeys ensures mixed-key tables are malformed
// rather than silently truncated.
func TestExtendRejectsNonStringKeys(t *testing.T) {
	reg := registry.New()
	h := newTestHost(t, "modA", reg, prototype.New())

	src := `core.registry.extend("cat", {{ name = "bad", [3] = "x", other = true }})`
	err := h.ExecSource("data.lua", src)
	if !errors.Is(err, def.ErrMalformedDefinition) {
		t.Fatalf("ExecSource error = %v, want ErrMalformedDefinition", err)
	}
}

// TestNumberNormalization ensures whole Lua numbers read back as integers
// and fractional ones as floats.
func TestNumberNormalization(t *testing.T) {
	reg := registry.New()
	h := newTestHost(t, "modA", reg, prototype.New())

	src := `core.registry.extend("cat", {{ name = "n", whole = 4, frac = 0.5 }})`
	if err := h.ExecSource("data.lua", src); err != nil {
		t.Fatalf("ExecSource returned error: %v", err)
	}
	got, err := reg.Lookup("cat", "modA", "n")
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	d := got.(map[string]any)
	if d["whole"] != 4 {
		t.Fatalf("whole = %#v (%T), want int 4", d["whole"], d["whole"])
	}
	if d["frac"] != 0.5 {
		t.Fatalf("frac = %#v (%T), want float64 0.5", d["frac"], d["frac"])
	}
}
