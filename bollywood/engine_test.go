package bollywood

import (
	"errors"
	"testing"

	"github.com/lguibr/actorkernel/kerr"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxActors = 16
	cfg.DefaultMailboxCap = 4
	cfg.Timeslice = 3
	return cfg
}

// TestSpawnSendReceive covers scenario S1: spawn an actor, send it one
// message from another PID, dispatch the recipient, observe delivery.
func TestSpawnSendReceive(t *testing.T) {
	e := NewEngine(testConfig())

	var got *Message
	done := make(chan struct{})
	pid, err := e.Spawn(func(ctx Context, _ interface{}) {
		msg, timedOut := ctx.Wait(5)
		require.False(t, timedOut)
		got = msg
		close(done)
	}, nil, Normal, 4096)
	require.NoError(t, err)
	require.NoError(t, e.Start(pid.ID))

	sender := PID{ID: 99}
	require.NoError(t, e.Send(sender, pid, Async, []byte("hello")))

	require.True(t, e.Dispatch())
	<-done

	require.NotNil(t, got)
	require.Equal(t, "hello", string(got.Payload))
	require.Equal(t, sender, got.Sender)
}

// TestMailboxBackpressure covers scenario S2: filling a mailbox to
// capacity rejects further Async sends with MailboxFull, while a
// System message still gets through on the one-slot overflow.
func TestMailboxBackpressure(t *testing.T) {
	e := NewEngine(testConfig())

	block := make(chan struct{})
	pid, err := e.Spawn(func(ctx Context, _ interface{}) {
		<-block
		ctx.Yield()
	}, nil, Normal, 4096)
	require.NoError(t, err)
	require.NoError(t, e.Start(pid.ID))

	sender := PID{ID: 1}
	for i := 0; i < e.cfg.DefaultMailboxCap; i++ {
		require.NoError(t, e.Send(sender, pid, Async, nil))
	}
	err = e.Send(sender, pid, Async, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, kerr.MailboxFull))

	require.NoError(t, e.SendSystem(sender, pid, nil))

	close(block)
	require.True(t, e.Dispatch())
}

// TestSyncSendReply covers scenario S3: actor A sync-sends to actor B,
// B replies, A's SyncSend returns the reply payload.
func TestSyncSendReply(t *testing.T) {
	e := NewEngine(testConfig())

	bDone := make(chan struct{})
	var bPID PID
	bPID, err := e.Spawn(func(ctx Context, _ interface{}) {
		req, timedOut := ctx.Wait(10)
		require.False(t, timedOut)
		require.Equal(t, SyncRequest, req.Kind)
		require.NoError(t, ctx.Reply(req, []byte("pong")))
		close(bDone)
	}, nil, Normal, 4096)
	require.NoError(t, err)

	var reply *Message
	var syncErr error
	aDone := make(chan struct{})
	aPID, err := e.Spawn(func(ctx Context, _ interface{}) {
		reply, syncErr = ctx.SyncSend(bPID, []byte("ping"), 10)
		close(aDone)
	}, nil, Normal, 4096)
	require.NoError(t, err)
	require.NoError(t, e.Start(aPID.ID))
	require.NoError(t, e.Start(bPID.ID))

	// A runs first: sends the request, then blocks awaiting reply.
	require.True(t, e.Dispatch())
	// B runs: receives the request, replies, finishes.
	require.True(t, e.Dispatch())
	<-bDone
	// B's reply made A Ready again; advance the clock once, then dispatch A.
	e.TimerTick()
	require.True(t, e.Dispatch())
	<-aDone

	require.NoError(t, syncErr)
	require.NotNil(t, reply)
	require.Equal(t, "pong", string(reply.Payload))
}

// TestPriorityOrdering covers the strict-priority / round-robin policy:
// a Critical actor is always selected ahead of a Normal one, and two
// same-priority actors alternate FIFO.
func TestPriorityOrdering(t *testing.T) {
	e := NewEngine(testConfig())

	var order []string
	mk := func(name string, prio Priority) PID {
		pid, err := e.Spawn(func(ctx Context, _ interface{}) {
			order = append(order, name)
		}, nil, prio, 4096)
		require.NoError(t, err)
		require.NoError(t, e.Start(pid.ID))
		return pid
	}

	mk("normal-1", Normal)
	mk("critical", Critical)
	mk("normal-2", Normal)

	for e.Dispatch() {
	}

	require.Equal(t, []string{"critical", "normal-1", "normal-2"}, order)
}

// TestTerminateRunningActor covers terminating the actor currently
// holding the turn token: finalization is deferred to its next
// suspension point.
func TestTerminateRunningActor(t *testing.T) {
	e := NewEngine(testConfig())

	entered := make(chan struct{})
	resumeLoop := make(chan struct{})
	pid, err := e.Spawn(func(ctx Context, _ interface{}) {
		close(entered)
		<-resumeLoop
		ctx.Yield()
	}, nil, Normal, 4096)
	require.NoError(t, err)
	require.NoError(t, e.Start(pid.ID))

	go e.Dispatch()
	<-entered

	termDone := make(chan error, 1)
	go func() { termDone <- e.Terminate(pid.ID) }()

	close(resumeLoop)
	require.NoError(t, <-termDone)

	_, ok := e.Snapshot(pid.ID)
	require.False(t, ok)
}

// TestKernelActorSelectedLast verifies the kernel actor only runs once
// no other actor is Ready.
func TestKernelActorSelectedLast(t *testing.T) {
	e := NewEngine(testConfig())

	var order []string
	kpid, err := e.SpawnKernel(func(ctx Context, _ interface{}) {
		order = append(order, "kernel")
	}, nil, 4096)
	require.NoError(t, err)
	require.NoError(t, e.Start(kpid.ID))

	npid, err := e.Spawn(func(ctx Context, _ interface{}) {
		order = append(order, "normal")
	}, nil, Normal, 4096)
	require.NoError(t, err)
	require.NoError(t, e.Start(npid.ID))

	for e.Dispatch() {
	}

	require.Equal(t, []string{"normal", "kernel"}, order)
}

// TestThrottleReducesSelectionFrequency covers kernel/supervisor's
// ThrottleEntity mechanism: a heavily throttled actor sharing its
// priority class with an unthrottled peer is picked markedly less often
// over a fixed number of rounds, and is selected again once the
// throttle is cleared.
func TestThrottleReducesSelectionFrequency(t *testing.T) {
	e := NewEngine(testConfig())

	idle := func(ctx Context, _ interface{}) {}
	aPid, err := e.Spawn(idle, nil, Normal, 4096)
	require.NoError(t, err)
	bPid, err := e.Spawn(idle, nil, Normal, 4096)
	require.NoError(t, err)
	require.NoError(t, e.Start(aPid.ID))
	require.NoError(t, e.Start(bPid.ID))

	var picks map[ActorID]int

	require.NoError(t, e.Throttle(aPid.ID, 90, 0))

	picks = map[ActorID]int{}
	for i := 0; i < 100; i++ {
		e.mu.Lock()
		id, found := e.pickNextLocked()
		e.mu.Unlock()
		require.True(t, found)
		picks[id]++
		e.mu.Lock()
		e.enqueueReadyLocked(id)
		e.mu.Unlock()
	}
	require.Less(t, picks[aPid.ID], picks[bPid.ID], "throttled actor must be picked markedly less often")

	require.NoError(t, e.Throttle(aPid.ID, 0, 0))
	picks = map[ActorID]int{}
	for i := 0; i < 20; i++ {
		e.mu.Lock()
		id, found := e.pickNextLocked()
		e.mu.Unlock()
		require.True(t, found)
		picks[id]++
		e.mu.Lock()
		e.enqueueReadyLocked(id)
		e.mu.Unlock()
	}
	require.Greater(t, picks[aPid.ID], 0, "clearing the throttle must restore normal selection")

	require.NoError(t, e.Terminate(aPid.ID))
	require.NoError(t, e.Terminate(bPid.ID))
}
