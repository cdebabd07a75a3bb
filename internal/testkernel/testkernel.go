// Package testkernel builds a ready-made *kctx.KernelContext for tests
// across the module, grounded on game/test_utils.go's role of building
// a ready GameActor fixture tests can spawn and immediately use rather
// than each repeating engine/registry wiring by hand.
package testkernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lguibr/actorkernel/bollywood"
	"github.com/lguibr/actorkernel/kernel/kctx"
)

// New boots a KernelContext on kctx.FastTestConfig and spawns+starts the
// reserved kernel actor, the way the teacher's test helper hands back an
// already-constructed GameActor instead of leaving every test to
// reassemble one.
func New(t *testing.T) *kctx.KernelContext {
	t.Helper()
	kc := kctx.New(kctx.FastTestConfig())

	pid, err := kc.Engine.SpawnKernel(func(ctx bollywood.Context, _ interface{}) {
		for {
			ctx.Wait(^uint64(0))
		}
	}, nil, 4096)
	require.NoError(t, err)
	require.NoError(t, kc.Engine.Start(pid.ID))

	return kc
}

// RunUntilIdle drives Dispatch+TimerTick on the calling goroutine until
// nothing is Ready, for tests that want a synchronous "settle the
// system" point rather than racing a background Run goroutine.
func RunUntilIdle(kc *kctx.KernelContext, maxRounds int) {
	for i := 0; i < maxRounds; i++ {
		ran := kc.Engine.Dispatch()
		kc.Engine.TimerTick()
		if !ran {
			return
		}
	}
}
