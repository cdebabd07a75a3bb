package bollywood

import "strconv"

// ActorID is a dense, stable identity for the lifetime of an actor slot.
// Id 0 is reserved for the kernel actor: always running, unmonitored,
// unlimited quota.
type ActorID uint32

// KernelActorID is the reserved identity of the always-present kernel
// actor.
const KernelActorID ActorID = 0

// PID (Process ID) is the externally visible handle to an actor. It
// wraps the dense ActorID the way the teacher's bollywood.PID wrapped a
// string id, kept as a distinct type so call sites read naturally
// (engine.Send(pid, ...)) without leaking the bare integer everywhere.
type PID struct {
	ID ActorID
}

// String renders the PID the way the teacher's PID.String did.
func (p PID) String() string {
	if p.ID == KernelActorID {
		return "actor-0(kernel)"
	}
	return "actor-" + strconv.FormatUint(uint64(p.ID), 10)
}
