// Package moduletest builds synthetic module images for tests, so
// integration tests can exercise the full load -> resolve -> init ->
// call -> hot-swap -> unload pipeline without a real on-disk image.
// Grounded on kernel/core/kernel_test.c's role as the kernel's own
// built-in exerciser of its subsystems (there it is a boot-time banner
// and feature checklist baked into kernel_main; here the same
// "the kernel proves its own subsystems work" role is served by an
// image the registry can actually load), and on kernel/module's own
// registry_test.go buildSimpleImage helper, generalized into an
// importable fixture.
package moduletest

import (
	"fmt"

	"github.com/lguibr/actorkernel/kernel/module"
)

// SelfTestName is the module name BuildSelfTestImage publishes under.
const SelfTestName = "mod_selftest"

// SelfTestFunction is the one exported function the self-test image
// declares; Call("mod_selftest.ping", ...) exercises the registry's
// full resolve+call path end to end.
const SelfTestFunction = SelfTestName + ".ping"

// BuildSelfTestImage builds a minimal, valid module image: one exported
// function, no dependencies, AutoStart set so Load drives it straight
// to Running, HotSwap set so the same image can stand in as its own
// replacement in a swap test. Deterministic across calls (same bytes
// every time) so tests can assert on exact checksums where useful.
func BuildSelfTestImage() []byte {
	h := module.Header{
		Name:          SelfTestName,
		ModuleVersion: 1,
		Flags:         module.FlagAutoStart | module.FlagHotSwap,
	}
	syms := []module.SymbolEntry{{Name: SelfTestFunction, AddressRel: 0, Size: 1}}
	return module.BuildImage(h, []byte{0x90}, nil, syms, nil)
}

// BuildSelfTestBody wires the self-test image's declared export to an
// actual callable: Init/Exit just count their own invocations, and
// "ping" echoes its argument back with a fixed prefix, giving a test a
// way to observe that Call actually reached the registered body rather
// than merely resolving a symbol address.
func BuildSelfTestBody() (*SelfTestState, module.Body) {
	st := &SelfTestState{}
	return st, module.Body{
		Init: func(ctx *module.CallContext) error {
			st.InitCount++
			return nil
		},
		Exit: func(ctx *module.CallContext) error {
			st.ExitCount++
			return nil
		},
		Functions: map[string]func(ctx *module.CallContext, args []byte) ([]byte, error){
			SelfTestFunction: func(ctx *module.CallContext, args []byte) ([]byte, error) {
				st.PingCount++
				return []byte(fmt.Sprintf("pong:%s", string(args))), nil
			},
		},
	}
}

// SelfTestState tracks how many times each of the self-test module's
// lifecycle hooks ran, so a test can assert the registry actually drove
// the pipeline it claims to.
type SelfTestState struct {
	InitCount int
	ExitCount int
	PingCount int
}
