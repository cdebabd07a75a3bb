// Package supervisor is the narrow surface the AI supervisor
// collaborator is wired through (spec.md §1 explicitly excludes "the AI
// model itself" from the core; this package is the contract, not the
// model). It gives read access to actor/module behavior accounting and
// a small set of interventions, so neither bollywood nor kernel/module
// ever import an "AI" concept directly — grounded on spec.md §9's named
// operations (suspend_entity, throttle_entity, quarantine_module) plus
// original_source/kernel/ai_supervisor.h's role as the kernel's single
// supervision entry point.
package supervisor

import (
	"sync"

	"github.com/lguibr/actorkernel/bollywood"
	"github.com/lguibr/actorkernel/kerr"
	"github.com/lguibr/actorkernel/kernel/kid"
	"github.com/lguibr/actorkernel/kernel/module"
)

// EntityKind distinguishes which table an EntityRef addresses.
type EntityKind int

const (
	ActorEntity EntityKind = iota
	ModuleEntity
)

// EntityRef names one actor or one module, never both.
type EntityRef struct {
	Kind    EntityKind
	ActorID bollywood.ActorID
	ModID   kid.ModuleID
}

// AnomalyKind classifies what AnomalyReport observed: spec.md §6's
// authoritative enumeration of anomaly kinds consumed from the AI
// supervisor collaborator.
type AnomalyKind int

const (
	MemoryLeak AnomalyKind = iota
	CpuSpike
	InfiniteLoop
	SecurityBreach
	ResourceAbuse
	Deadlock
	AnomalyCorruption
	NetworkFlood
)

func (k AnomalyKind) String() string {
	switch k {
	case MemoryLeak:
		return "MemoryLeak"
	case CpuSpike:
		return "CpuSpike"
	case InfiniteLoop:
		return "InfiniteLoop"
	case SecurityBreach:
		return "SecurityBreach"
	case ResourceAbuse:
		return "ResourceAbuse"
	case Deadlock:
		return "Deadlock"
	case AnomalyCorruption:
		return "Corruption"
	case NetworkFlood:
		return "NetworkFlood"
	default:
		return "Unknown"
	}
}

// InterventionOp is one of the named interventions spec.md §9 lists.
type InterventionOp int

const (
	OpSuspend InterventionOp = iota
	OpResume
	OpQuarantineModule
	OpTerminateActor
)

// BehaviorSnapshot is the read surface AnomalyReport and debugsrv both
// consume: the accounting fields spec.md's data model already carries
// on Actor/Module, copied out read-only.
type BehaviorSnapshot struct {
	Entity         EntityRef
	CPUTime        uint64
	FunctionCalls  uint64 // module only; 0 for an actor entity
	ErrorCount     uint64
	BehaviorScore  int
	AnomalyCounter int
}

// Config tunes the behavior-score update rule of SPEC_FULL.md §C.
type Config struct {
	ViolationPenalty int // points subtracted per AnomalyReport, default 15
	RecoveryPoints   int // points restored per clean sweep tick, default 1
}

// DefaultConfig matches SPEC_FULL.md §C's stated defaults.
func DefaultConfig() Config {
	return Config{ViolationPenalty: 15, RecoveryPoints: 1}
}

// Supervisor is the AI-facing read/intervene surface. It holds no
// behavior-determining logic of its own — every decision (when to
// intervene, what counts as anomalous) is made by the external AI
// collaborator that calls these methods; Supervisor only performs the
// mechanical bookkeeping and the narrow set of named interventions.
type Supervisor struct {
	mu sync.Mutex

	cfg     Config
	engine  *bollywood.Engine
	modules *module.Registry

	lastViolationCount map[kid.ModuleID]int // per-module violation count at last sweep, for edge-detecting new violations
}

// New constructs a Supervisor wired to the engine and module registry it
// reads from and intervenes on.
func New(engine *bollywood.Engine, modules *module.Registry, cfg Config) *Supervisor {
	return &Supervisor{
		cfg:                 cfg,
		engine:              engine,
		modules:             modules,
		lastViolationCount:  make(map[kid.ModuleID]int),
	}
}

// BehaviorSnapshot reads one entity's accounting block.
func (s *Supervisor) BehaviorSnapshot(ref EntityRef) (BehaviorSnapshot, error) {
	switch ref.Kind {
	case ActorEntity:
		a, ok := s.engine.Snapshot(ref.ActorID)
		if !ok {
			return BehaviorSnapshot{}, kerr.New(kerr.NoSuchId, "behavior snapshot: no such actor")
		}
		return BehaviorSnapshot{
			Entity:         ref,
			CPUTime:        a.Stats.CPUTime,
			BehaviorScore:  a.Stats.BehaviorScore,
			AnomalyCounter: a.Stats.AnomalyCounter,
		}, nil
	case ModuleEntity:
		rec, ok := s.modules.Snapshot(ref.ModID)
		if !ok {
			return BehaviorSnapshot{}, kerr.New(kerr.NoSuchId, "behavior snapshot: no such module")
		}
		return BehaviorSnapshot{
			Entity:         ref,
			CPUTime:        rec.Stats.CPUTime,
			FunctionCalls:  rec.Stats.FunctionCalls,
			ErrorCount:     rec.Stats.ErrorCount,
			BehaviorScore:  rec.Stats.BehaviorScore,
			AnomalyCounter: rec.Stats.AnomalyCounter,
		}, nil
	default:
		return BehaviorSnapshot{}, kerr.New(kerr.ValidationFailed, "unknown entity kind")
	}
}

// AnomalyReport lets the AI collaborator record an anomaly against an
// entity: it bumps the anomaly counter and applies the violation
// penalty to the behavior score, independent of whether a sandbox
// violation was also separately logged (AnomalyReport is the
// supervisor's own judgment, sandbox.Violate is the kernel's).
func (s *Supervisor) AnomalyReport(kind AnomalyKind, subject EntityRef, detail string) error {
	switch subject.Kind {
	case ActorEntity:
		if err := s.engine.IncrementAnomalyCounter(subject.ActorID); err != nil {
			return err
		}
		return s.engine.AdjustBehaviorScore(subject.ActorID, -s.cfg.ViolationPenalty)
	case ModuleEntity:
		if err := s.modules.IncrementAnomalyCounter(subject.ModID); err != nil {
			return err
		}
		return s.modules.AdjustBehaviorScore(subject.ModID, -s.cfg.ViolationPenalty)
	default:
		return kerr.New(kerr.ValidationFailed, "unknown entity kind")
	}
}

// ThrottleEntity implements the chosen throttle mechanism of
// SPEC_FULL.md §C/§D: percent (0-100) lowers the actor's effective
// scheduling priority within its class for durationTicks ticks (0 =
// indefinite). Only actors can be throttled; modules have no scheduling
// presence of their own.
func (s *Supervisor) ThrottleEntity(actorID bollywood.ActorID, percent int, durationTicks uint64) error {
	return s.engine.Throttle(actorID, percent, durationTicks)
}

// Intervene performs one of the named operations of spec.md §9 against
// an entity. OpQuarantineModule only accepts a ModuleEntity; the actor
// ops only accept an ActorEntity.
func (s *Supervisor) Intervene(op InterventionOp, subject EntityRef) error {
	switch op {
	case OpSuspend:
		if subject.Kind != ActorEntity {
			return kerr.New(kerr.ValidationFailed, "suspend requires an actor entity")
		}
		return s.engine.Suspend(subject.ActorID)
	case OpResume:
		if subject.Kind != ActorEntity {
			return kerr.New(kerr.ValidationFailed, "resume requires an actor entity")
		}
		return s.engine.Resume(subject.ActorID)
	case OpTerminateActor:
		if subject.Kind != ActorEntity {
			return kerr.New(kerr.ValidationFailed, "terminate requires an actor entity")
		}
		return s.engine.Terminate(subject.ActorID)
	case OpQuarantineModule:
		if subject.Kind != ModuleEntity {
			return kerr.New(kerr.ValidationFailed, "quarantine requires a module entity")
		}
		rec, ok := s.modules.Snapshot(subject.ModID)
		if !ok {
			return kerr.New(kerr.NoSuchId, "quarantine: no such module")
		}
		if rec.Sandbox == nil {
			return kerr.New(kerr.StateInvalid, "quarantine: module has no sandbox")
		}
		rec.Sandbox.Quarantine()
		return nil
	default:
		return kerr.New(kerr.ValidationFailed, "unknown intervention op")
	}
}

// Sweep is the periodic behavior-score recovery pass SPEC_FULL.md §C
// names: wired to bollywood.Engine.OnSupervisorSweep, it is called every
// SupervisorSweepTicks ticks of the engine's Config. Every module whose
// violation count has not grown since the last sweep recovers
// cfg.RecoveryPoints behavior score points (floored at 0, capped at 100)
// and has its sandbox's consecutive-violation counter cleared, matching
// the "clean tick" recovery rule; a module whose violation count DID grow
// is left alone (no recovery this round). Sweep never subtracts points:
// the penalty is applied only by AnomalyReport, and sandbox.Violate
// changes no behavior score. Every live actor recovers cfg.RecoveryPoints
// on each sweep.
func (s *Supervisor) Sweep(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.modules.SnapshotAll() {
		if rec.Sandbox == nil {
			continue
		}
		count := len(rec.Sandbox.Violations())
		prev := s.lastViolationCount[rec.ID]
		if count == prev {
			_ = s.modules.AdjustBehaviorScore(rec.ID, s.cfg.RecoveryPoints)
			rec.Sandbox.ResetConsecutiveViolations()
		}
		s.lastViolationCount[rec.ID] = count
	}

	for _, a := range s.engine.SnapshotAll() {
		_ = s.engine.AdjustBehaviorScore(a.ID, s.cfg.RecoveryPoints)
	}
}
