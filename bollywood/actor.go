package bollywood

// State is one of the seven lifecycle states named in spec.md §3/§4.2.
type State int

const (
	Created State = iota
	Ready
	Running
	Blocked
	Finished
	Error
	Suspended
)

func (s State) String() string {
	switch s {
	case Created:
		return "Created"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Blocked:
		return "Blocked"
	case Finished:
		return "Finished"
	case Error:
		return "Error"
	case Suspended:
		return "Suspended"
	default:
		return "Unknown"
	}
}

// Priority is strictly ordered, Critical first.
type Priority int

const (
	Critical Priority = iota
	High
	Normal
	Low
	Idle
	numPriorities
)

func (p Priority) String() string {
	switch p {
	case Critical:
		return "Critical"
	case High:
		return "High"
	case Normal:
		return "Normal"
	case Low:
		return "Low"
	case Idle:
		return "Idle"
	default:
		return "Unknown"
	}
}

// Entry is the function an actor is spawned with. It is called exactly
// once, at first dispatch, with the user_data word supplied at spawn
// time. It is expected to loop internally, suspending only at ctx.Wait,
// ctx.Yield or ctx.SyncSend; a normal return transitions the actor to
// Finished, a panic is recovered and transitions it to Error.
type Entry func(ctx Context, userData interface{})

// Stats is the per-actor accounting block spec.md §3 names.
type Stats struct {
	CPUTime          uint64
	MessagesSent     uint64
	MessagesReceived uint64
	CreationTick     uint64
	LastScheduledTick uint64
	MemoryUsed       uint64
	MemoryLimit      uint64 // 0 = unlimited (kernel only)
	BehaviorScore    int
	AnomalyCounter   int
	ContextSwitches  uint64
	TimesliceExpiries uint64
	ThrottlePercent  int // advisory, 0 = not throttled; see SPEC_FULL.md §C
}

// Actor is the kernel-visible record of one actor slot: identity,
// lifecycle state, accounting, and owned mailbox. The real execution
// stack is the host goroutine's own stack (see DESIGN.md); StackSize is
// retained purely as an accounted resource figure.
type Actor struct {
	ID        ActorID
	State     State
	Priority  Priority
	StackSize int
	UserData  interface{}
	Mailbox   *Mailbox
	Stats     Stats

	entry Entry
}
