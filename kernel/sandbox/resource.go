package sandbox

// Resource is one of the enumerated resource types spec.md §6 names.
type Resource int

const (
	Memory Resource = iota
	CPUTime
	FileHandles
	NetworkConnections
	ChildActors
	HeapAllocs
	ModuleCalls
	AiQueries
	numResources
)

func (r Resource) String() string {
	switch r {
	case Memory:
		return "Memory"
	case CPUTime:
		return "CpuTime"
	case FileHandles:
		return "FileHandles"
	case NetworkConnections:
		return "NetworkConnections"
	case ChildActors:
		return "ChildActors"
	case HeapAllocs:
		return "HeapAllocs"
	case ModuleCalls:
		return "ModuleCalls"
	case AiQueries:
		return "AiQueries"
	default:
		return "Unknown"
	}
}

// Limit is one resource's (limit, used, peak, enforce) record, per
// spec.md §3's Sandbox data model.
type Limit struct {
	Limit   uint64
	Used    uint64
	Peak    uint64
	Enforce bool
}

const (
	kib = 1024
	mib = 1024 * kib
)

// defaultLimits implements spec.md §4.4's "Default resource limits (by
// level)" table. The concrete figures are this implementation's choice
// where spec.md only describes them qualitatively ("moderate", "tight")
// — §4.4 only pins one concrete figure (Quarantine memory, 256 KiB),
// reproduced here exactly; the rest scale from it.
func defaultLimits(l Level) [numResources]Limit {
	var lim [numResources]Limit
	switch l {
	case Unrestricted:
		// No limits: Enforce stays false on every resource.
	case Trusted:
		lim[Memory] = Limit{Limit: 64 * mib, Enforce: true}
		lim[ChildActors] = Limit{Limit: 64, Enforce: true}
		lim[HeapAllocs] = Limit{Limit: 4096, Enforce: true}
	case User:
		lim[Memory] = Limit{Limit: 8 * mib, Enforce: true}
		lim[ChildActors] = Limit{Limit: 8, Enforce: true}
		lim[HeapAllocs] = Limit{Limit: 512, Enforce: true}
		lim[ModuleCalls] = Limit{Limit: 100_000, Enforce: true}
	case Untrusted:
		lim[Memory] = Limit{Limit: 1 * mib, Enforce: true}
		lim[ChildActors] = Limit{Limit: 0, Enforce: true}
		lim[HeapAllocs] = Limit{Limit: 64, Enforce: true}
		lim[ModuleCalls] = Limit{Limit: 1_000, Enforce: true}
		lim[AiQueries] = Limit{Limit: 10, Enforce: true}
	case Quarantine:
		lim[Memory] = Limit{Limit: 256 * kib, Enforce: true}
		lim[ChildActors] = Limit{Limit: 0, Enforce: true}
		lim[HeapAllocs] = Limit{Limit: 4, Enforce: true}
		lim[ModuleCalls] = Limit{Limit: 16, Enforce: true}
		lim[AiQueries] = Limit{Limit: 0, Enforce: true}
	}
	return lim
}
