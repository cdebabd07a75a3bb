// Package interrupt lifts hardware interrupts into the message-passing
// world spec.md §5 describes: a stub fires, the registered vector maps
// to a target actor, and a fixed-size frame is enqueued as a System
// message so it bypasses normal mailbox backpressure by one slot — the
// same "kernel liveness" bypass bollywood/mailbox.go already gives every
// System-kind message. No actor code ever runs inside the stub itself;
// it only synthesizes a message and returns, per spec.md §5's
// "Interrupt handlers do not run actor code; they synthesize messages."
//
// Grounded on game/room_manager.go's registry-of-targets-under-a-mutex
// shape, generalized from room-id to interrupt-vector.
package interrupt

import (
	"encoding/binary"
	"sync"

	"github.com/lguibr/actorkernel/bollywood"
	"github.com/lguibr/actorkernel/kerr"
)

// Vector identifies an interrupt source, per spec.md §6's external
// interface (`interrupt_register(vector, actor_id)`).
type Vector uint8

// FrameSize is the encoded size of a Frame: vector(1) + error_code(4) +
// timestamp(8) + cpu_id(4) + frame_ptr(8).
const FrameSize = 1 + 4 + 8 + 4 + 8

// Frame is the distinguished interrupt payload of spec.md §3:
// (vector, error_code, timestamp, cpu_id, frame_ptr).
type Frame struct {
	Vector    Vector
	ErrorCode uint32
	Timestamp uint64
	CPUID     uint32
	FramePtr  uintptr
}

// Encode renders f into a fixed-size buffer — the "without further
// allocation" contract of spec.md §3 is satisfied at the frame level;
// the one owned-buffer copy taken by the mailbox on enqueue is the same
// single copy every other message pays per spec.md §4.1.
func (f Frame) Encode() []byte {
	buf := make([]byte, FrameSize)
	buf[0] = byte(f.Vector)
	binary.LittleEndian.PutUint32(buf[1:5], f.ErrorCode)
	binary.LittleEndian.PutUint64(buf[5:13], f.Timestamp)
	binary.LittleEndian.PutUint32(buf[13:17], f.CPUID)
	binary.LittleEndian.PutUint64(buf[17:25], uint64(f.FramePtr))
	return buf
}

// DecodeFrame parses a Frame out of a message payload.
func DecodeFrame(buf []byte) (Frame, error) {
	if len(buf) < FrameSize {
		return Frame{}, kerr.New(kerr.ValidationFailed, "interrupt frame truncated")
	}
	return Frame{
		Vector:    Vector(buf[0]),
		ErrorCode: binary.LittleEndian.Uint32(buf[1:5]),
		Timestamp: binary.LittleEndian.Uint64(buf[5:13]),
		CPUID:     binary.LittleEndian.Uint32(buf[13:17]),
		FramePtr:  uintptr(binary.LittleEndian.Uint64(buf[17:25])),
	}, nil
}

// TimerSource is the external timer collaborator of spec.md §6's
// `timer_tick()` contract: something that can be driven forward one
// logical tick at a time. *bollywood.Engine satisfies this directly via
// TimerTick; grounded on mod_timer.c's single `tick()` entry point.
type TimerSource interface {
	TimerTick()
}

// Registry maps interrupt vectors to a target actor, per
// `interrupt_register(vector, actor_id)`. One vector has at most one
// registered target; a later Register replaces the prior one, matching
// the external IDT glue's "registers a target actor per vector"
// contract (re-registration, not accumulation).
type Registry struct {
	mu      sync.RWMutex
	targets map[Vector]bollywood.PID
}

// NewRegistry constructs an empty interrupt registry.
func NewRegistry() *Registry {
	return &Registry{targets: make(map[Vector]bollywood.PID)}
}

// Register binds vector to actor, per spec.md §6.
func (r *Registry) Register(vector Vector, actor bollywood.PID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[vector] = actor
}

// Unregister removes a vector's binding, if any.
func (r *Registry) Unregister(vector Vector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.targets, vector)
}

// Target reports the actor currently bound to vector, if any.
func (r *Registry) Target(vector Vector) (bollywood.PID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pid, ok := r.targets[vector]
	return pid, ok
}

// Fire is the interrupt stub's one operation: look up vector's target
// and enqueue the encoded frame as a System message. An unregistered
// vector is reported, never silently dropped, per spec.md §4.1's
// "failure semantics: send failures are reported, never retried
// silently."
func (r *Registry) Fire(engine *bollywood.Engine, vector Vector, errorCode uint32, cpuID uint32, framePtr uintptr) error {
	target, ok := r.Target(vector)
	if !ok {
		return kerr.New(kerr.NoSuchId, "no actor registered for interrupt vector")
	}
	frame := Frame{
		Vector:    vector,
		ErrorCode: errorCode,
		Timestamp: engine.Tick(),
		CPUID:     cpuID,
		FramePtr:  framePtr,
	}
	return engine.SendSystem(bollywood.PID{}, target, frame.Encode())
}
