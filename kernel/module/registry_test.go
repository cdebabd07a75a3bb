package module

import (
	"testing"

	"github.com/lguibr/actorkernel/kernel/sandbox"
	"github.com/stretchr/testify/require"
)

func testRegistry() *Registry {
	cfg := DefaultConfig()
	cfg.MaxModules = 16
	return NewRegistry(cfg)
}

func buildSimpleImage(name string, flags Flags, deps []DependencyEntry) []byte {
	h := Header{Name: name, ModuleVersion: 1, Flags: flags}
	syms := []SymbolEntry{{Name: name + ".f", AddressRel: 0, Size: 1}}
	return BuildImage(h, []byte{0xC3}, nil, syms, deps)
}

func TestLoadPublishesExportsAndCreatesSandbox(t *testing.T) {
	r := testRegistry()
	id, err := r.Load(buildSimpleImage("mod_base", 0, nil), Body{}, sandbox.User)
	require.NoError(t, err)

	rec, ok := r.Snapshot(id)
	require.True(t, ok)
	require.Equal(t, Loaded, rec.State)
	require.NotNil(t, rec.Sandbox)

	addr, owner, err := r.Resolve("mod_base.f")
	require.NoError(t, err)
	require.Equal(t, id, owner)
	require.Equal(t, rec.Base, addr)
}

func TestLoadRejectsDuplicateName(t *testing.T) {
	r := testRegistry()
	_, err := r.Load(buildSimpleImage("mod_dup", 0, nil), Body{}, sandbox.User)
	require.NoError(t, err)

	_, err = r.Load(buildSimpleImage("mod_dup", 0, nil), Body{}, sandbox.User)
	require.Error(t, err)
}

func TestLoadAutoStartTransitionsToRunning(t *testing.T) {
	r := testRegistry()
	id, err := r.Load(buildSimpleImage("mod_auto", FlagAutoStart, nil), Body{}, sandbox.User)
	require.NoError(t, err)

	rec, _ := r.Snapshot(id)
	require.Equal(t, Running, rec.State)
	_ = id
}

// TestDependencyResolutionAndBackEdges: loading a module whose
// dependency is already Loaded records the back-edge; unloading the
// dependency while the dependent is still registered is refused.
func TestDependencyResolutionAndBackEdges(t *testing.T) {
	r := testRegistry()
	baseID, err := r.Load(buildSimpleImage("mod_base", 0, nil), Body{}, sandbox.Trusted)
	require.NoError(t, err)

	depID, err := r.Load(buildSimpleImage("mod_dependent", 0, []DependencyEntry{
		{Name: "mod_base", MinVersion: 1, MaxVersion: 1},
	}), Body{}, sandbox.User)
	require.NoError(t, err)

	baseRec, _ := r.Snapshot(baseID)
	require.True(t, baseRec.Dependents[depID])

	err = r.Unload(baseID)
	require.Error(t, err, "base has a dependent, unload must be refused")

	require.NoError(t, r.Unload(depID))
	require.NoError(t, r.Unload(baseID))
}

func TestLoadFailsOnMissingRequiredDependency(t *testing.T) {
	r := testRegistry()
	_, err := r.Load(buildSimpleImage("mod_needs_x", 0, []DependencyEntry{
		{Name: "mod_missing", MinVersion: 1, MaxVersion: 1},
	}), Body{}, sandbox.User)
	require.Error(t, err)
}

func TestLoadSucceedsOnMissingOptionalDependency(t *testing.T) {
	r := testRegistry()
	id, err := r.Load(buildSimpleImage("mod_opt", 0, []DependencyEntry{
		{Name: "mod_missing", MinVersion: 1, MaxVersion: 1, Optional: true},
	}), Body{}, sandbox.User)
	require.NoError(t, err)

	rec, _ := r.Snapshot(id)
	require.False(t, rec.Dependencies[0].Satisfied)
}

// TestUnloadRefusesCoreModule covers spec.md §3's Core invariant.
func TestUnloadRefusesCoreModule(t *testing.T) {
	r := testRegistry()
	id, err := r.Load(buildSimpleImage("mod_core", FlagCore, nil), Body{}, sandbox.Trusted)
	require.NoError(t, err)
	require.Error(t, r.Unload(id))
}

// TestUnloadRetractsExports covers §8 property 7: after a successful
// unload, resolve no longer finds the module's formerly exported
// symbols.
func TestUnloadRetractsExports(t *testing.T) {
	r := testRegistry()
	id, err := r.Load(buildSimpleImage("mod_gone", 0, nil), Body{}, sandbox.User)
	require.NoError(t, err)
	require.NoError(t, r.Unload(id))

	_, _, err = r.Resolve("mod_gone.f")
	require.Error(t, err)
}

func TestInitFailureUnwindsLoad(t *testing.T) {
	r := testRegistry()
	body := Body{Init: func(ctx *CallContext) error {
		return require.AnError
	}}
	_, err := r.Load(buildSimpleImage("mod_broken", 0, nil), body, sandbox.User)
	require.Error(t, err)

	_, _, resolveErr := r.Resolve("mod_broken.f")
	require.Error(t, resolveErr, "a failed init must not leave exports published")

	_, ok := r.ByName("mod_broken")
	require.False(t, ok, "a failed init must not leave the name registered")
}

// TestHotSwapReplacesExportAddress covers scenario S6: swap(mod_v1,
// mod_v2_image) retargets resolve("f") to the new image's code region.
func TestHotSwapReplacesExportAddress(t *testing.T) {
	r := testRegistry()
	v1 := Header{Name: "mod_v1", ModuleVersion: 1, Flags: FlagHotSwap | FlagAutoStart}
	img1 := BuildImage(v1, []byte{0x90}, nil, []SymbolEntry{{Name: "f", AddressRel: 0}}, nil)

	var v1Exited, v2Inited bool
	body1 := Body{
		Exit: func(ctx *CallContext) error { v1Exited = true; return nil },
		Functions: map[string]func(*CallContext, []byte) ([]byte, error){
			"f": func(ctx *CallContext, args []byte) ([]byte, error) { return []byte("v1"), nil },
		},
	}
	id, err := r.Load(img1, body1, sandbox.Trusted)
	require.NoError(t, err)

	oldRec, _ := r.Snapshot(id)
	oldBase := oldRec.Base

	v2 := Header{Name: "mod_v1", ModuleVersion: 2, Flags: FlagHotSwap}
	img2 := BuildImage(v2, []byte{0x90, 0x90}, nil, []SymbolEntry{{Name: "f", AddressRel: 0}}, nil)
	body2 := Body{
		Init: func(ctx *CallContext) error { v2Inited = true; return nil },
		Functions: map[string]func(*CallContext, []byte) ([]byte, error){
			"f": func(ctx *CallContext, args []byte) ([]byte, error) { return []byte("v2"), nil },
		},
	}
	require.NoError(t, r.Swap(id, img2, body2))
	require.True(t, v1Exited)
	require.True(t, v2Inited)

	addr, owner, err := r.Resolve("f")
	require.NoError(t, err)
	require.Equal(t, id, owner)
	require.NotEqual(t, oldBase, addr, "resolved address must point into the new image region")

	out, err := r.Call(id, "f", nil)
	require.NoError(t, err)
	require.Equal(t, "v2", string(out))

	newRec, _ := r.Snapshot(id)
	require.NoError(t, newRec.Sandbox.CheckMemoryAccess(newRec.Base, 1, false),
		"new image region must be registered")
	require.Error(t, newRec.Sandbox.CheckMemoryAccess(oldBase, 1, false),
		"old image region must be unregistered once the swap succeeds")
}

func TestHotSwapRefusesWithoutFlag(t *testing.T) {
	r := testRegistry()
	id, err := r.Load(buildSimpleImage("mod_static", 0, nil), Body{}, sandbox.User)
	require.NoError(t, err)
	err = r.Swap(id, buildSimpleImage("mod_static", 0, nil), Body{})
	require.Error(t, err)
}

func TestHotSwapBusyWhileCallInFlight(t *testing.T) {
	r := testRegistry()
	img := BuildImage(Header{Name: "mod_busy", ModuleVersion: 1, Flags: FlagHotSwap},
		[]byte{0x90}, nil, []SymbolEntry{{Name: "g"}}, nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	body := Body{Functions: map[string]func(*CallContext, []byte) ([]byte, error){
		"g": func(ctx *CallContext, args []byte) ([]byte, error) {
			close(entered)
			<-release
			return nil, nil
		},
	}}
	id, err := r.Load(img, body, sandbox.Trusted)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, _ = r.Call(id, "g", nil)
		close(done)
	}()
	<-entered

	err = r.Swap(id, img, Body{})
	require.Error(t, err)

	close(release)
	<-done
}

func TestResolveCountsEveryResolution(t *testing.T) {
	r := testRegistry()
	id, err := r.Load(buildSimpleImage("mod_count", 0, nil), Body{}, sandbox.User)
	require.NoError(t, err)
	_ = id
	_, _, _ = r.Resolve("mod_count.f")
	_, _, _ = r.Resolve("mod_count.f")
	_, _, _ = r.Resolve("nonexistent")
	require.Equal(t, uint64(3), r.ResolveCount())
}

func TestCallChecksFunctionCapabilityDenyList(t *testing.T) {
	r := testRegistry()
	img := BuildImage(Header{Name: "mod_privileged", ModuleVersion: 1},
		[]byte{0x90}, nil, nil, nil)
	body := Body{Functions: map[string]func(*CallContext, []byte) ([]byte, error){
		"reboot": func(ctx *CallContext, args []byte) ([]byte, error) { return nil, nil },
	}}
	id, err := r.Load(img, body, sandbox.Unrestricted)
	require.NoError(t, err)

	_, err = r.Call(id, "reboot", nil)
	require.Error(t, err)
}
