// Package bollywood is the actor engine: actor table, bounded mailboxes,
// and single-threaded cooperative dispatch. It generalizes the teacher's
// from-scratch bollywood engine (PID/Props/Context/Engine in
// bollywood/{actor,process,engine,mailbox,address}.go, plus the cleaner
// vendored copy under vendor/github.com/lguibr/pongo/bollywood) from
// "one goroutine freely running per actor" into spec.md §4.1/§4.2's
// model: at most one actor logically Running at any instant, with
// explicit suspension points (Wait, Yield, SyncSend) gating a
// scheduler-owned turn token. See DESIGN.md for the full design
// rationale.
package bollywood

import (
	"runtime"
	"sync"

	"github.com/lguibr/actorkernel/kerr"
)

// Config tunes the engine the way the teacher's utils.Config tunes the
// game. Zero-valued fields are invalid; use DefaultConfig.
type Config struct {
	MaxActors             int
	DefaultMailboxCap     int
	KernelMailboxCap      int
	Timeslice             uint64
	SupervisorSweepTicks  uint64
}

// DefaultConfig mirrors spec.md's stated defaults (mailbox cap 64,
// kernel 256, timeslice 10 ticks, MAX_ACTORS 256).
func DefaultConfig() Config {
	return Config{
		MaxActors:            256,
		DefaultMailboxCap:    64,
		KernelMailboxCap:     256,
		Timeslice:            10,
		SupervisorSweepTicks: 100,
	}
}

type suspendReason int

const (
	reasonYield suspendReason = iota
	reasonTimesliceYield
	reasonBlockedWait
	reasonBlockedSync
	reasonFinished
	reasonError
)

type turnGrant struct {
	terminated bool
}

type suspendSignal struct {
	reason   suspendReason
	deadline uint64 // absolute tick, 0 = no timeout
}

type slot struct {
	actor              *Actor
	resume             chan turnGrant
	yielded            chan suspendSignal
	exited             chan struct{}
	turnStartTick      uint64
	forceYield         bool
	terminateRequested bool
	priorState         State // remembered across Suspend/Resume

	// throttlePercent/throttleUntilTick/throttleSkipCounter back
	// kernel/supervisor's ThrottleEntity, the advisory scheduling weight
	// chosen for spec.md §9's open throttle-mechanism question (see
	// DESIGN.md): pickNextLocked skips a throttled actor roughly
	// throttlePercent% of the times it would otherwise be selected,
	// until throttleUntilTick (0 = indefinite) elapses.
	throttlePercent   int
	throttleUntilTick uint64
	throttleSkipCounter uint64
}

// Engine is the single-owner kernel context for actors: it is the
// "kernel context record" Design Notes §9 calls for — all mutable actor
// state lives here, addressed only by dense ActorID, never by pointer
// chase across actors.
type Engine struct {
	mu sync.Mutex

	cfg Config

	actors  map[ActorID]*slot
	ready   [numPriorities][]ActorID
	blocked map[ActorID]uint64 // actorID -> wake-at tick, 0 = no deadline

	nextFreshID ActorID
	freeIDs     []ActorID
	kernelUsed  bool

	hasRunning bool
	runningID  ActorID

	tick           uint64
	nextMessageID  uint64
	contextSwitches uint64

	stopping bool

	// OnSupervisorSweep, if set, is invoked from TimerTick every
	// cfg.SupervisorSweepTicks ticks — the hook the AI supervisor
	// collaborator (kernel/supervisor) attaches to for its periodic
	// behavior sweep, per spec.md §4.2 "On a configurable schedule
	// triggers AI behavior sweep."
	OnSupervisorSweep func(tick uint64)
}

var messagePool = sync.Pool{New: func() interface{} { return new(Message) }}

func acquireMessage() *Message { return messagePool.Get().(*Message) }

func releaseToPool(m *Message) {
	*m = Message{}
	messagePool.Put(m)
}

// NewEngine constructs an engine. The kernel actor (id 0) is not
// implicitly created; callers spawn it explicitly with SpawnKernel so
// its entry, stack accounting and mailbox capacity are caller-chosen.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:         cfg,
		actors:      make(map[ActorID]*slot),
		blocked:     make(map[ActorID]uint64),
		nextFreshID: 1,
	}
}

func (e *Engine) mustSlot(id ActorID) *slot {
	e.mu.Lock()
	s := e.actors[id]
	e.mu.Unlock()
	return s
}

func (e *Engine) allocMessageID() uint64 {
	e.nextMessageID++
	return e.nextMessageID
}

// spawn is shared by Spawn and SpawnKernel.
func (e *Engine) spawn(id ActorID, entry Entry, userData interface{}, priority Priority, stackSize, mailboxCap int) (PID, error) {
	if entry == nil {
		return PID{}, kerr.New(kerr.ValidationFailed, "entry must not be nil")
	}
	e.mu.Lock()
	a := &Actor{
		ID:        id,
		State:     Created,
		Priority:  priority,
		StackSize: stackSize,
		UserData:  userData,
		Mailbox:   NewMailbox(mailboxCap),
		entry:     entry,
	}
	a.Stats.CreationTick = e.tick
	if id == KernelActorID {
		a.Stats.MemoryLimit = 0 // unlimited
	}
	s := &slot{
		actor:   a,
		resume:  make(chan turnGrant),
		yielded: make(chan suspendSignal),
		exited:  make(chan struct{}),
	}
	e.actors[id] = s
	e.mu.Unlock()

	go e.runLoop(id)

	return PID{ID: id}, nil
}

// Spawn allocates an actor slot and stack accounting, constructing the
// actor's initial image such that first dispatch calls entry(ctx,
// userData). The new actor is Created; call Start to make it Ready.
func (e *Engine) Spawn(entry Entry, userData interface{}, priority Priority, stackSize int) (PID, error) {
	e.mu.Lock()
	if e.stopping {
		e.mu.Unlock()
		return PID{}, kerr.New(kerr.StateInvalid, "engine is stopping")
	}
	var id ActorID
	if n := len(e.freeIDs); n > 0 {
		id = e.freeIDs[n-1]
		e.freeIDs = e.freeIDs[:n-1]
	} else {
		if int(e.nextFreshID) >= e.cfg.MaxActors {
			e.mu.Unlock()
			return PID{}, kerr.New(kerr.OutOfMemory, "actor table full")
		}
		id = e.nextFreshID
		e.nextFreshID++
	}
	e.mu.Unlock()

	return e.spawn(id, entry, userData, priority, stackSize, e.cfg.DefaultMailboxCap)
}

// SpawnKernel installs the reserved kernel actor (id 0): always
// running, unmonitored, unlimited quota, per spec.md §3. Must be called
// at most once.
func (e *Engine) SpawnKernel(entry Entry, userData interface{}, stackSize int) (PID, error) {
	e.mu.Lock()
	if e.kernelUsed {
		e.mu.Unlock()
		return PID{}, kerr.New(kerr.StateInvalid, "kernel actor already spawned")
	}
	e.kernelUsed = true
	e.mu.Unlock()
	return e.spawn(KernelActorID, entry, userData, Critical, stackSize, e.cfg.KernelMailboxCap)
}

// Start transitions Created -> Ready and inserts the actor into the
// ready queue (or, for the kernel actor, marks it eligible for the
// fallback-selection rule).
func (e *Engine) Start(id ActorID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.actors[id]
	if !ok {
		return kerr.New(kerr.NoSuchId, "start")
	}
	if s.actor.State != Created {
		return kerr.New(kerr.StateInvalid, "start: actor not Created")
	}
	s.actor.State = Ready
	e.enqueueReadyLocked(id)
	return nil
}

func (e *Engine) enqueueReadyLocked(id ActorID) {
	if id == KernelActorID {
		return // kernel actor's readiness is tracked via State alone
	}
	s := e.actors[id]
	e.ready[s.actor.Priority] = append(e.ready[s.actor.Priority], id)
}

func (e *Engine) removeFromSchedulingLocked(id ActorID) {
	for p := range e.ready {
		q := e.ready[p]
		for i, qid := range q {
			if qid == id {
				e.ready[p] = append(q[:i], q[i+1:]...)
				break
			}
		}
	}
	delete(e.blocked, id)
}

// Suspend moves any non-terminal actor to Suspended, removing it from
// scheduling consideration until Resume.
func (e *Engine) Suspend(id ActorID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.actors[id]
	if !ok {
		return kerr.New(kerr.NoSuchId, "suspend")
	}
	switch s.actor.State {
	case Finished, Error, Suspended:
		return kerr.New(kerr.StateInvalid, "suspend: terminal or already suspended")
	}
	s.priorState = s.actor.State
	e.removeFromSchedulingLocked(id)
	s.actor.State = Suspended
	return nil
}

// Resume restores prior Ready/Running-implied scheduling eligibility.
// If the prior state is not Ready or Running (e.g. it was Blocked),
// this implementation conservatively resumes to Ready — spec.md's state
// table only names resume's target for a prior Ready/Running, so
// defaulting any other prior to Ready is the decision that keeps the
// actor making forward progress.
func (e *Engine) Resume(id ActorID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.actors[id]
	if !ok {
		return kerr.New(kerr.NoSuchId, "resume")
	}
	if s.actor.State != Suspended {
		return kerr.New(kerr.StateInvalid, "resume: actor not Suspended")
	}
	s.actor.State = Ready
	e.enqueueReadyLocked(id)
	return nil
}

// Terminate removes id from the ready/blocked bookkeeping, releases its
// mailbox contents, and frees its slot. If id is currently Running,
// finalization is deferred to the moment it next reaches a suspension
// point or returns (spec.md §4.2's "terminate is edge-triggered").
func (e *Engine) Terminate(id ActorID) error {
	if id == KernelActorID {
		return kerr.New(kerr.StateInvalid, "kernel actor cannot be terminated")
	}
	e.mu.Lock()
	s, ok := e.actors[id]
	if !ok {
		e.mu.Unlock()
		return kerr.New(kerr.NoSuchId, "terminate")
	}
	if e.hasRunning && e.runningID == id {
		s.terminateRequested = true
		e.mu.Unlock()
		<-s.exited
		e.freeSlot(id)
		return nil
	}
	state := s.actor.State
	e.removeFromSchedulingLocked(id)
	e.mu.Unlock()

	if state != Finished && state != Error {
		s.resume <- turnGrant{terminated: true}
	}
	<-s.exited
	e.freeSlot(id)
	return nil
}

func (e *Engine) freeSlot(id ActorID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.actors[id]
	if !ok {
		return
	}
	for _, msg := range s.actor.Mailbox.drain() {
		releaseToPool(msg)
	}
	delete(e.actors, id)
	delete(e.blocked, id)
	e.freeIDs = append(e.freeIDs, id)
}

// Shutdown requests termination of every non-kernel actor and waits
// (subject to the caller's own deadline handling) for the table to
// drain. Grounded on the teacher's Engine.Shutdown sequencing
// (stop every actor, then wait for the table to empty).
func (e *Engine) Shutdown() {
	e.mu.Lock()
	e.stopping = true
	ids := make([]ActorID, 0, len(e.actors))
	for id := range e.actors {
		if id != KernelActorID {
			ids = append(ids, id)
		}
	}
	e.mu.Unlock()

	for _, id := range ids {
		_ = e.Terminate(id)
	}
}

// Throttle sets (or clears, with percent 0) the advisory scheduling
// weight kernel/supervisor's ThrottleEntity operation exposes. percent
// is clamped to [0,100] and lowers the actor's effective priority within
// its class roughly proportionally for durationTicks ticks (0 =
// indefinite, until a later call changes it). It never touches the
// actor's State or its place in other actors' classes. When every Ready
// actor is skipped by its throttle, the first one skipped runs anyway,
// so a throttle never leaves the engine idle while an actor is Ready.
func (e *Engine) Throttle(id ActorID, percent int, durationTicks uint64) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.actors[id]
	if !ok {
		return kerr.New(kerr.NoSuchId, "throttle")
	}
	s.throttlePercent = percent
	s.actor.Stats.ThrottlePercent = percent
	if durationTicks > 0 {
		s.throttleUntilTick = e.tick + durationTicks
	} else {
		s.throttleUntilTick = 0
	}
	return nil
}

// AdjustBehaviorScore changes an actor's behavior score by delta,
// clamped to [0,100], per SPEC_FULL.md §C's update rule: kernel/
// supervisor subtracts a penalty on each AnomalyReport and restores
// points on each periodic sweep.
func (e *Engine) AdjustBehaviorScore(id ActorID, delta int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.actors[id]
	if !ok {
		return kerr.New(kerr.NoSuchId, "adjust behavior score")
	}
	score := s.actor.Stats.BehaviorScore + delta
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	s.actor.Stats.BehaviorScore = score
	return nil
}

// IncrementAnomalyCounter bumps an actor's anomaly tally, per
// kernel/supervisor's AnomalyReport.
func (e *Engine) IncrementAnomalyCounter(id ActorID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.actors[id]
	if !ok {
		return kerr.New(kerr.NoSuchId, "increment anomaly counter")
	}
	s.actor.Stats.AnomalyCounter++
	return nil
}

// ActorCount reports the number of live (un-terminated) actor slots.
func (e *Engine) ActorCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.actors)
}

// Snapshot returns a shallow copy of an actor's record for
// introspection (debugsrv, kernel/supervisor). Mutating the returned
// value has no effect on the engine.
func (e *Engine) Snapshot(id ActorID) (Actor, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.actors[id]
	if !ok {
		return Actor{}, false
	}
	cp := *s.actor
	return cp, true
}

// SnapshotAll returns a shallow copy of every live actor record.
func (e *Engine) SnapshotAll() []Actor {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Actor, 0, len(e.actors))
	for _, s := range e.actors {
		out = append(out, *s.actor)
	}
	return out
}

// runLoop is the goroutine body for one actor slot. It parks on the
// initial resume grant until Dispatch (or a kill grant) wakes it, then
// runs the actor's Entry exactly once to completion.
func (e *Engine) runLoop(id ActorID) {
	s := e.mustSlot(id)
	defer func() {
		if r := recover(); r != nil {
			e.markDone(id, Error)
			s.yielded <- suspendSignal{reason: reasonError}
		}
		close(s.exited)
	}()

	grant := <-s.resume
	if grant.terminated {
		runtime.Goexit()
	}
	ctx := &context{engine: e, self: PID{ID: id}}
	s.actor.entry(ctx, s.actor.UserData)
	e.markDone(id, Finished)
	s.yielded <- suspendSignal{reason: reasonFinished}
}

func (e *Engine) markDone(id ActorID, state State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.actors[id]; ok {
		s.actor.State = state
	}
}
