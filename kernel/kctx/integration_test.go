package kctx_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lguibr/actorkernel/bollywood"
	"github.com/lguibr/actorkernel/internal/moduletest"
	"github.com/lguibr/actorkernel/internal/testkernel"
	"github.com/lguibr/actorkernel/kernel/interrupt"
	"github.com/lguibr/actorkernel/kernel/sandbox"
	"github.com/lguibr/actorkernel/kernel/supervisor"
)

// TestFullLifecycleLoadCallSwapUnload exercises the whole pipeline an
// integration test of this shape is for: boot a kernel, load a module,
// call into it, hot-swap its body, unload it, and confirm the registry
// reflects every step.
func TestFullLifecycleLoadCallSwapUnload(t *testing.T) {
	kc := testkernel.New(t)

	_, body := moduletest.BuildSelfTestBody()
	id, err := kc.Modules.Load(moduletest.BuildSelfTestImage(), body, sandbox.User)
	require.NoError(t, err)

	rec, ok := kc.Modules.Snapshot(id)
	require.True(t, ok)
	require.Equal(t, moduletest.SelfTestName, rec.Name)

	out, err := kc.Modules.Call(id, moduletest.SelfTestFunction, []byte("hi"))
	require.NoError(t, err)
	require.Equal(t, "pong:hi", string(out))

	st2, body2 := moduletest.BuildSelfTestBody()
	require.NoError(t, kc.Modules.Swap(id, moduletest.BuildSelfTestImage(), body2))
	require.Equal(t, 0, st2.PingCount)

	out, err = kc.Modules.Call(id, moduletest.SelfTestFunction, []byte("again"))
	require.NoError(t, err)
	require.Equal(t, "pong:again", string(out))
	require.Equal(t, 1, st2.PingCount)

	require.NoError(t, kc.Modules.Unload(id))
	_, ok = kc.Modules.Snapshot(id)
	require.False(t, ok)
}

// TestActorDispatchSupervisorAndInterruptTogether runs a small scenario
// spanning all four wired subsystems at once: an actor is spawned and
// throttled, an interrupt fires into it, and the supervisor reads its
// behavior snapshot afterward.
func TestActorDispatchSupervisorAndInterruptTogether(t *testing.T) {
	kc := testkernel.New(t)

	received := make(chan interrupt.Frame, 1)
	done := make(chan struct{})
	pid, err := kc.Engine.Spawn(func(ctx bollywood.Context, _ interface{}) {
		m, timedOut := ctx.Wait(10)
		require.False(t, timedOut)
		frame, decodeErr := interrupt.DecodeFrame(m.Payload)
		require.NoError(t, decodeErr)
		received <- frame
		close(done)
	}, nil, bollywood.Normal, 4096)
	require.NoError(t, err)
	require.NoError(t, kc.Engine.Start(pid.ID))

	kc.RegisterInterrupt(interrupt.Vector(2), pid)
	require.NoError(t, kc.Supervisor.ThrottleEntity(pid.ID, 50, 0))
	require.NoError(t, kc.FireInterrupt(interrupt.Vector(2), 0, 0, 0))

	require.True(t, kc.Engine.Dispatch())

	select {
	case frame := <-received:
		require.Equal(t, interrupt.Vector(2), frame.Vector)
	case <-time.After(time.Second):
		t.Fatal("actor never observed the fired interrupt")
	}
	<-done

	snap, err := kc.Supervisor.BehaviorSnapshot(supervisor.EntityRef{Kind: supervisor.ActorEntity, ActorID: pid.ID})
	require.NoError(t, err)
	require.Equal(t, 0, snap.BehaviorScore)
}
