// Package sandbox implements the per-module security context spec.md
// §4.4 describes: capability bitmasks, resource accounting, a bounded
// violation log, and quarantine escalation. It has no Go analogue in
// the teacher repo (pongo has no security model at all) — it is
// grounded directly on spec.md §3/§4.4/§6, with the violation ring's
// bounded-overwrite shape mirroring the bounded-mailbox-capacity idea
// already used in bollywood/mailbox.go, generalized from a message
// queue to a log.
package sandbox

import (
	"sync"

	"github.com/lguibr/actorkernel/kerr"
	"github.com/lguibr/actorkernel/kernel/kid"
)

// Config tunes sandbox behavior across every module, grounded on
// utils.Config's per-system tunable pattern.
type Config struct {
	ViolationRingCap   int
	ViolationThreshold int // consecutive violations before quarantine
	StrictEnforcement  bool
}

// DefaultConfig matches spec.md's stated default escalation threshold
// (5) with strict enforcement on.
func DefaultConfig() Config {
	return Config{ViolationRingCap: 64, ViolationThreshold: 5, StrictEnforcement: true}
}

type region struct {
	base, length uintptr
}

// TickSource is the external clock collaborator spec.md §6's now()
// contract names: a monotonic tick source a Sandbox stamps violation
// timestamps with. Mirrors kernel/interrupt.TimerSource's single-method
// shape; *bollywood.Engine satisfies it via its existing Tick()
// accessor, wired in by kctx.New.
type TickSource interface {
	Tick() uint64
}

// noTickSource is the zero-value clock: a Sandbox constructed directly
// (e.g. by a unit test with no engine around) stamps every violation at
// tick 0 instead of needing a nil check on every Violate call.
type noTickSource struct{}

func (noTickSource) Tick() uint64 { return 0 }

// Sandbox is bound 1:1 to a module record. Every field access is
// serialized by mu; the module registry borrows a Sandbox only for the
// duration of a single operation, per spec.md §5's ownership model.
type Sandbox struct {
	mu sync.Mutex

	moduleID kid.ModuleID
	cfg      Config

	level   Level
	granted Capability
	denied  Capability

	limits [numResources]Limit

	violations            *violationRing
	nextViolationID       uint64
	consecutiveViolations int
	quarantineEvents      int

	regions []region

	ticks TickSource
}

// New constructs a Sandbox at the given level with that level's default
// grants and limits, per spec.md §4.3 load-pipeline step 6 ("create
// sandbox ... at the requested security level; defaults derived by
// type/flags").
func New(moduleID kid.ModuleID, level Level, cfg Config) *Sandbox {
	return &Sandbox{
		moduleID:   moduleID,
		cfg:        cfg,
		level:      level,
		granted:    defaultGrants(level),
		limits:     defaultLimits(level),
		violations: newViolationRing(cfg.ViolationRingCap),
		ticks:      noTickSource{},
	}
}

// SetTickSource wires the clock collaborator used to stamp violation
// timestamps, e.g. the kernel's bollywood.Engine. A nil ts resets the
// sandbox back to the zero-value clock.
func (s *Sandbox) SetTickSource(ts TickSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts == nil {
		ts = noTickSource{}
	}
	s.ticks = ts
}

// Level reports the current security level.
func (s *Sandbox) Level() Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// effectiveLocked returns granted AND NOT denied, per spec.md §3's
// invariant. Callers hold s.mu.
func (s *Sandbox) effectiveLocked() Capability { return s.granted &^ s.denied }

// Effective is the exported form of effectiveLocked, for read-only
// callers (e.g. debugsrv's incident report) that need a module's final
// capability set without being able to mutate it.
func (s *Sandbox) Effective() Capability {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effectiveLocked()
}

// HasCap implements has_cap: a failing check emits a violation log
// entry and returns false.
func (s *Sandbox) HasCap(cap Capability) bool {
	s.mu.Lock()
	ok := s.effectiveLocked().Has(cap)
	s.mu.Unlock()
	if !ok {
		s.Violate(CapabilityViolation, cap.String(), "capability check failed: "+cap.String())
	}
	return ok
}

// Grant adds cap to the granted mask.
func (s *Sandbox) Grant(cap Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.granted |= cap
}

// Revoke adds cap to the denied mask (denied always wins over granted).
func (s *Sandbox) Revoke(cap Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied |= cap
}

// SetCaps replaces the granted mask wholesale and clears denied, per
// spec.md §4.4's set_caps contract.
func (s *Sandbox) SetCaps(mask Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.granted = mask
	s.denied = 0
}

// SetLimit sets or replaces a resource's limit record, preserving any
// already-accounted usage.
func (s *Sandbox) SetLimit(r Resource, limit uint64, enforce bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits[r].Limit = limit
	s.limits[r].Enforce = enforce
}

// CheckLimit implements check_limit: used+delta <= limit, or always ok
// if the resource isn't enforced. A denial is logged as a violation.
func (s *Sandbox) CheckLimit(r Resource, delta uint64) error {
	s.mu.Lock()
	lim := s.limits[r]
	s.mu.Unlock()
	if !lim.Enforce {
		return nil
	}
	if lim.Used+delta > lim.Limit {
		s.Violate(ResourceViolation, r.String(), "resource limit exceeded")
		return kerr.New(kerr.ResourceExceeded, r.String())
	}
	return nil
}

// Account commits a resource charge and updates peak usage. Callers
// are expected to have already called CheckLimit; Account never fails.
func (s *Sandbox) Account(r Resource, delta uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits[r].Used += delta
	if s.limits[r].Used > s.limits[r].Peak {
		s.limits[r].Peak = s.limits[r].Used
	}
}

// Release gives back a previously accounted charge (e.g. a free()
// matching a prior alloc()).
func (s *Sandbox) Release(r Resource, delta uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if delta > s.limits[r].Used {
		s.limits[r].Used = 0
		return
	}
	s.limits[r].Used -= delta
}

// LimitSnapshot returns a copy of one resource's accounting record.
func (s *Sandbox) LimitSnapshot(r Resource) Limit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits[r]
}

// RegisterRegion attributes an owned memory range (the module's image
// region, or an allocation charged to it) for CheckMemoryAccess to
// validate against.
func (s *Sandbox) RegisterRegion(base, length uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions = append(s.regions, region{base: base, length: length})
}

// UnregisterRegion removes a previously registered range (e.g. on
// free()). It is a no-op if the exact range was never registered.
func (s *Sandbox) UnregisterRegion(base, length uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.regions {
		if r.base == base && r.length == length {
			s.regions = append(s.regions[:i], s.regions[i+1:]...)
			return
		}
	}
}

// CheckMemoryAccess validates that [ptr, ptr+length) lies entirely
// within a region owned by this module, and that the module holds the
// capability the access direction requires (MemoryAlloc covers a read
// of one's own region; a write additionally requires MemoryProtect to be
// held — spec.md leaves the exact capability pairing to the
// implementation, this expansion uses MemoryAlloc for any access and
// additionally MemoryProtect for writes).
func (s *Sandbox) CheckMemoryAccess(ptr, length uintptr, write bool) error {
	needed := MemoryAlloc
	if write {
		needed |= MemoryProtect
	}
	if !s.HasCap(needed) {
		return kerr.New(kerr.CapabilityDenied, "memory access")
	}

	s.mu.Lock()
	inBounds := false
	for _, r := range s.regions {
		if ptr >= r.base && ptr+length <= r.base+r.length {
			inBounds = true
			break
		}
	}
	s.mu.Unlock()
	if !inBounds {
		s.Violate(MemoryViolation, "memory-range", "access outside owned region")
		return kerr.New(kerr.CapabilityDenied, "memory access outside owned region")
	}
	return nil
}

// CheckFunctionCall implements check_function_call: it charges
// ModuleCalls and rejects the built-in deny-list of names regardless of
// capability grants.
func (s *Sandbox) CheckFunctionCall(name string) error {
	if builtinDenyListNames[name] {
		s.Violate(PolicyViolation, name, "built-in deny-list function")
		return kerr.New(kerr.CapabilityDenied, "denied function: "+name)
	}
	if err := s.CheckLimit(ModuleCalls, 1); err != nil {
		return err
	}
	s.Account(ModuleCalls, 1)
	return nil
}

// Violate appends a violation log entry, stamped with the wired tick
// source's current tick, increments the per-sandbox counter, and
// escalates to Quarantine once the counter exceeds the configured
// threshold under strict enforcement, per spec.md §4.4. spec.md's own
// worked example (provoke 6 capability violations; quarantine happens
// "after the 6th") tolerates exactly `ViolationThreshold` violations
// before the next one escalates — hence `>`, not `>=`.
func (s *Sandbox) Violate(kind ViolationKind, attempted, description string) {
	s.mu.Lock()
	ts := s.ticks.Tick()
	s.nextViolationID++
	id := s.nextViolationID
	s.violations.push(Violation{
		ID: id, Timestamp: ts, ModuleID: s.moduleID, Kind: kind,
		Attempted: attempted, Description: description,
	})
	s.consecutiveViolations++
	escalate := s.cfg.StrictEnforcement &&
		s.level != Quarantine &&
		s.consecutiveViolations > s.cfg.ViolationThreshold
	s.mu.Unlock()

	if escalate {
		s.Quarantine()
	}
}

// Quarantine is the terminal security-level transition: capabilities
// collapse to the Quarantine default, tight limits are re-applied, and
// the sandbox's quarantine event counter increments. A quarantined
// sandbox cannot un-quarantine itself — only Restore (an explicit
// privileged operation) can.
func (s *Sandbox) Quarantine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = Quarantine
	s.granted = defaultGrants(Quarantine)
	s.denied = 0
	s.limits = defaultLimits(Quarantine)
	s.quarantineEvents++
}

// Restore is the one explicit privileged operation spec.md §4.4 allows
// to leave Quarantine. It is not reachable from Violate/escalation —
// only an external caller (the supervisor's Intervene surface, or an
// operator) may call it.
func (s *Sandbox) Restore(to Level) error {
	if to == Quarantine {
		return kerr.New(kerr.StateInvalid, "restore target must not be Quarantine")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = to
	s.granted = defaultGrants(to)
	s.denied = 0
	s.limits = defaultLimits(to)
	s.consecutiveViolations = 0
	return nil
}

// ResetConsecutiveViolations clears the escalation counter without
// changing level — used by the behavior-score recovery rule in
// kernel/supervisor (SPEC_FULL.md §C) on a periodic sweep that finds no
// new violation for this module.
func (s *Sandbox) ResetConsecutiveViolations() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveViolations = 0
}

// Violations returns a snapshot of the violation log, oldest first.
func (s *Sandbox) Violations() []Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.violations.snapshot()
}

// QuarantineEvents reports how many times this sandbox has been
// quarantined (system statistics, per spec.md §4.4).
func (s *Sandbox) QuarantineEvents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quarantineEvents
}

// ModuleID reports the module this sandbox is bound to.
func (s *Sandbox) ModuleID() kid.ModuleID { return s.moduleID }
