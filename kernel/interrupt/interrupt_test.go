package interrupt

import (
	"testing"

	"github.com/lguibr/actorkernel/bollywood"
	"github.com/stretchr/testify/require"
)

var _ TimerSource = (*bollywood.Engine)(nil)

func testEngine() *bollywood.Engine {
	cfg := bollywood.DefaultConfig()
	cfg.MaxActors = 16
	cfg.DefaultMailboxCap = 4
	return bollywood.NewEngine(cfg)
}

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	f := Frame{Vector: 7, ErrorCode: 42, Timestamp: 100, CPUID: 0, FramePtr: 0xdeadbeef}
	got, err := DecodeFrame(f.Encode())
	require.NoError(t, err)
	require.Equal(t, f, got)
}

func TestDecodeFrameRejectsTruncatedBuffer(t *testing.T) {
	_, err := DecodeFrame([]byte{1, 2, 3})
	require.Error(t, err)
}

// TestFireDeliversFrameToRegisteredActor covers spec.md §6's
// interrupt_register/fire contract: a fired vector enqueues a frame into
// the registered actor's mailbox as a System message.
func TestFireDeliversFrameToRegisteredActor(t *testing.T) {
	e := testEngine()
	r := NewRegistry()

	var got *bollywood.Message
	done := make(chan struct{})
	pid, err := e.Spawn(func(ctx bollywood.Context, _ interface{}) {
		msg, timedOut := ctx.Wait(5)
		require.False(t, timedOut)
		got = msg
		close(done)
	}, nil, bollywood.Normal, 4096)
	require.NoError(t, err)
	require.NoError(t, e.Start(pid.ID))

	r.Register(Vector(3), pid)
	require.NoError(t, r.Fire(e, Vector(3), 0, 0, 0))

	require.True(t, e.Dispatch())
	<-done

	require.NotNil(t, got)
	require.Equal(t, bollywood.System, got.Kind)
	frame, err := DecodeFrame(got.Payload)
	require.NoError(t, err)
	require.Equal(t, Vector(3), frame.Vector)
}

func TestFireOnUnregisteredVectorReportsError(t *testing.T) {
	e := testEngine()
	r := NewRegistry()
	err := r.Fire(e, Vector(9), 0, 0, 0)
	require.Error(t, err)
}

func TestRegisterReplacesPriorTarget(t *testing.T) {
	r := NewRegistry()
	a := bollywood.PID{ID: 1}
	b := bollywood.PID{ID: 2}
	r.Register(Vector(1), a)
	r.Register(Vector(1), b)
	target, ok := r.Target(Vector(1))
	require.True(t, ok)
	require.Equal(t, b, target)
}

func TestUnregisterRemovesBinding(t *testing.T) {
	r := NewRegistry()
	r.Register(Vector(1), bollywood.PID{ID: 1})
	r.Unregister(Vector(1))
	_, ok := r.Target(Vector(1))
	require.False(t, ok)
}

// TestSystemMessageBypassesMailboxCap covers the "without further
// allocation"/liveness bypass: a full mailbox still accepts one more
// interrupt frame since interrupts are delivered as System messages.
func TestSystemMessageBypassesMailboxCap(t *testing.T) {
	e := testEngine()
	r := NewRegistry()

	block := make(chan struct{})
	pid, err := e.Spawn(func(ctx bollywood.Context, _ interface{}) {
		<-block
		ctx.Yield()
	}, nil, bollywood.Normal, 4096)
	require.NoError(t, err)
	require.NoError(t, e.Start(pid.ID))
	r.Register(Vector(5), pid)

	sender := bollywood.PID{ID: 100}
	for i := 0; i < 4; i++ {
		require.NoError(t, e.Send(sender, pid, bollywood.Async, []byte("x")))
	}
	require.Error(t, e.Send(sender, pid, bollywood.Async, []byte("overflow")))

	require.NoError(t, r.Fire(e, Vector(5), 0, 0, 0))
	close(block)
}
