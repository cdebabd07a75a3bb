package module

import (
	"github.com/lguibr/actorkernel/kernel/kid"
	"github.com/lguibr/actorkernel/kernel/sandbox"
)

// ModID is the module package's name for the shared dense module
// identity type.
type ModID = kid.ModuleID

// State is one of the seven module lifecycle states of spec.md §3.
type State int

const (
	Unloaded State = iota
	Loading
	Loaded
	Running
	Unloading
	Error
	Suspended
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "Unloaded"
	case Loading:
		return "Loading"
	case Loaded:
		return "Loaded"
	case Running:
		return "Running"
	case Unloading:
		return "Unloading"
	case Error:
		return "Error"
	case Suspended:
		return "Suspended"
	default:
		return "Unknown"
	}
}

// ResolvedDependency is one dependency entry paired with the module id
// it was actually resolved against at load time.
type ResolvedDependency struct {
	DependencyEntry
	ResolvedTo ModID
	Satisfied  bool
}

// Stats is the per-module accounting block of spec.md §3.
type Stats struct {
	CPUTime         uint64
	MemoryAllocated uint64
	FunctionCalls   uint64
	ErrorCount      uint64
	BehaviorScore   int
	AnomalyCounter  int
}

// Record is the kernel-visible record of one loaded module: identity,
// image region, state, exports, dependency edges, flags, accounting,
// and its bound Sandbox. It generalizes game/room_manager.go's
// map-of-live-instances entry (there a *bollywood.PID plus a player
// count) to a full module record addressed by dense id, per spec.md
// §3's "Module" data model.
type Record struct {
	ID   ModID
	Name string

	Base        uintptr // synthetic address-space base this image occupies
	CodeSize    int
	DataSize    int
	BSSSize     int
	EntryOffset uint32
	ExitOffset  uint32

	ModuleVersion uint32
	Description   string
	Author        string
	License       string
	Type          uint8
	Priority      uint8
	Flags         Flags

	State State

	Exports      []SymbolEntry        // names as declared in the image
	Dependencies []ResolvedDependency // this module's requirements
	Dependents   map[ModID]bool       // back-edges: modules that depend on this one

	Stats   Stats
	Sandbox *sandbox.Sandbox

	entryCounter int // in-flight calls into this module's exported code; hot-swap quiescent point requires this at 0
}
