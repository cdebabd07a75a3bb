package module

import (
	"sync"

	"github.com/lguibr/actorkernel/kerr"
	"github.com/lguibr/actorkernel/kernel/kid"
	"github.com/lguibr/actorkernel/kernel/sandbox"
	"github.com/lguibr/actorkernel/klog"
)

// Config tunes the registry, grounded on utils.Config's per-subsystem
// tunable pattern.
type Config struct {
	MaxModules    int
	SandboxConfig sandbox.Config
	AddressAlign  uintptr // bump-allocator alignment for each image's synthetic base
}

// DefaultConfig matches spec.md's implied bounds (no explicit MAX_MODULES
// figure is given; 256 mirrors MAX_ACTORS since both are dense id tables
// of the same implementation shape).
func DefaultConfig() Config {
	return Config{MaxModules: 256, SandboxConfig: sandbox.DefaultConfig(), AddressAlign: 4096}
}

type symbolEntry struct {
	moduleID ModID
	address  uintptr
	size     uint32
}

// Registry owns the full module table, the flat global symbol table,
// and the dependency graph, per spec.md §4.3. It is the single owner
// design notes §9 calls for: every reference between module records is
// a ModID, not a pointer.
type Registry struct {
	mu sync.RWMutex

	cfg Config

	modules map[ModID]*Record
	byName  map[string]ModID

	symbols      map[string]symbolEntry
	resolveCount uint64

	bodies map[ModID]*Body

	nextFreshID ModID
	freeIDs     []ModID

	nextBase uintptr

	ticks sandbox.TickSource
}

// SetTickSource wires the clock collaborator every module's sandbox is
// stamped with, mirroring kernel/interrupt.Registry's vector-to-actor
// wiring being set once after construction. Must be called before the
// first Load to take effect on that module's sandbox; a later call only
// affects modules loaded afterwards.
func (r *Registry) SetTickSource(ts sandbox.TickSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = ts
}

// NewRegistry constructs an empty registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:         cfg,
		modules:     make(map[ModID]*Record),
		byName:      make(map[string]ModID),
		symbols:     make(map[string]symbolEntry),
		bodies:      make(map[ModID]*Body),
		nextFreshID: 1,
		nextBase:    0x10000,
	}
}

func (r *Registry) allocID() (ModID, error) {
	if n := len(r.freeIDs); n > 0 {
		id := r.freeIDs[n-1]
		r.freeIDs = r.freeIDs[:n-1]
		return id, nil
	}
	if int(r.nextFreshID) >= r.cfg.MaxModules {
		return 0, kerr.New(kerr.OutOfMemory, "module table full")
	}
	id := r.nextFreshID
	r.nextFreshID++
	return id, nil
}

func (r *Registry) allocBase(size int) uintptr {
	base := r.nextBase
	align := r.cfg.AddressAlign
	if align == 0 {
		align = 1
	}
	aligned := uintptr(size)
	if rem := aligned % align; rem != 0 {
		aligned += align - rem
	}
	r.nextBase += aligned
	return base
}

// Load implements the full load pipeline of spec.md §4.3: validate,
// uniqueness, allocate, resolve imports, publish exports, create
// sandbox, init, transition. Any failure after allocation unwinds what
// was already done.
func (r *Registry) Load(buf []byte, body Body, level sandbox.Level) (ModID, error) {
	parsed, err := ValidateImage(buf)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	if _, exists := r.byName[parsed.Header.Name]; exists {
		r.mu.Unlock()
		return 0, kerr.New(kerr.ValidationFailed, "module name already registered: "+parsed.Header.Name)
	}
	id, err := r.allocID()
	if err != nil {
		r.mu.Unlock()
		return 0, err
	}
	base := r.allocBase(parsed.Header.CodeSize + parsed.Header.DataSize + parsed.Header.BSSSize)

	rec := &Record{
		ID:            id,
		Name:          parsed.Header.Name,
		Base:          base,
		CodeSize:      parsed.Header.CodeSize,
		DataSize:      parsed.Header.DataSize,
		BSSSize:       parsed.Header.BSSSize,
		EntryOffset:   parsed.Header.EntryOffset,
		ExitOffset:    parsed.Header.ExitOffset,
		ModuleVersion: parsed.Header.ModuleVersion,
		Description:   parsed.Header.Description,
		Author:        parsed.Header.Author,
		License:       parsed.Header.License,
		Type:          parsed.Header.Type,
		Priority:      parsed.Header.Priority,
		Flags:         parsed.Header.Flags,
		State:         Loading,
		Exports:       parsed.Symbols,
		Dependents:    make(map[ModID]bool),
	}

	resolved, err := r.resolveDependenciesLocked(id, parsed.Dependencies)
	if err != nil {
		r.freeIDs = append(r.freeIDs, id)
		r.mu.Unlock()
		return 0, err
	}
	rec.Dependencies = resolved

	if err := r.publishExportsLocked(rec); err != nil {
		r.unresolveDependenciesLocked(id, resolved)
		r.freeIDs = append(r.freeIDs, id)
		r.mu.Unlock()
		return 0, err
	}

	rec.Sandbox = sandbox.New(kid.ModuleID(id), level, r.cfg.SandboxConfig)
	if r.ticks != nil {
		rec.Sandbox.SetTickSource(r.ticks)
	}
	rec.Sandbox.RegisterRegion(base, uintptr(rec.CodeSize+rec.DataSize+rec.BSSSize))

	r.modules[id] = rec
	r.byName[rec.Name] = id
	bodyCopy := body
	r.bodies[id] = &bodyCopy
	r.mu.Unlock()

	if body.Init != nil {
		if err := body.Init(&CallContext{Self: id}); err != nil {
			r.unloadFailedLoad(id)
			return 0, kerr.Wrap(kerr.ValidationFailed, "module init failed", err)
		}
	}

	r.mu.Lock()
	rec.State = Loaded
	autoStart := rec.Flags.Has(FlagAutoStart)
	r.mu.Unlock()

	if autoStart {
		if err := r.Start(id); err != nil {
			return id, err
		}
	}
	return id, nil
}

// Start transitions a Loaded module to Running (the "implicit start"
// spec.md §4.3 step 8 names for AutoStart modules, also callable
// directly).
func (r *Registry) Start(id ModID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.modules[id]
	if !ok {
		return kerr.New(kerr.NoSuchId, "start module")
	}
	if rec.State != Loaded {
		return kerr.New(kerr.StateInvalid, "start: module not Loaded")
	}
	rec.State = Running
	return nil
}

// resolveDependenciesLocked implements step 4: every required
// dependency must already be Loaded or Running with a version inside
// [min,max]; missing optional dependencies succeed with Satisfied =
// false, missing required dependencies fail the whole load. Back-edges
// are recorded on success.
func (r *Registry) resolveDependenciesLocked(id ModID, deps []DependencyEntry) ([]ResolvedDependency, error) {
	out := make([]ResolvedDependency, 0, len(deps))
	var linked []ModID
	for _, d := range deps {
		depID, ok := r.byName[d.Name]
		if !ok {
			if d.Optional {
				out = append(out, ResolvedDependency{DependencyEntry: d, Satisfied: false})
				continue
			}
			for _, l := range linked {
				delete(r.modules[l].Dependents, id)
			}
			return nil, kerr.New(kerr.DependencyUnsatisfied, "missing required dependency: "+d.Name)
		}
		dep := r.modules[depID]
		versionOK := (dep.State == Loaded || dep.State == Running) &&
			dep.ModuleVersion >= d.MinVersion && dep.ModuleVersion <= d.MaxVersion
		if !versionOK {
			if d.Optional {
				out = append(out, ResolvedDependency{DependencyEntry: d, Satisfied: false})
				continue
			}
			for _, l := range linked {
				delete(r.modules[l].Dependents, id)
			}
			return nil, kerr.New(kerr.DependencyUnsatisfied, "version or state unsatisfied: "+d.Name)
		}
		dep.Dependents[id] = true
		linked = append(linked, depID)
		out = append(out, ResolvedDependency{DependencyEntry: d, ResolvedTo: depID, Satisfied: true})
	}
	return out, nil
}

func (r *Registry) unresolveDependenciesLocked(id ModID, resolved []ResolvedDependency) {
	for _, d := range resolved {
		if d.Satisfied {
			delete(r.modules[d.ResolvedTo].Dependents, id)
		}
	}
}

// publishExportsLocked implements step 5: exports become visible only
// after this call, and a name collision across modules is rejected at
// load time.
func (r *Registry) publishExportsLocked(rec *Record) error {
	for _, sym := range rec.Exports {
		if _, exists := r.symbols[sym.Name]; exists {
			return kerr.New(kerr.ValidationFailed, "symbol name collision: "+sym.Name)
		}
	}
	for _, sym := range rec.Exports {
		r.symbols[sym.Name] = symbolEntry{
			moduleID: rec.ID,
			address:  rec.Base + uintptr(sym.AddressRel),
			size:     sym.Size,
		}
	}
	return nil
}

func (r *Registry) retractExportsLocked(rec *Record) {
	for _, sym := range rec.Exports {
		if cur, ok := r.symbols[sym.Name]; ok && cur.moduleID == rec.ID {
			delete(r.symbols, sym.Name)
		}
	}
}

// unloadFailedLoad reverses steps 1-6 for a module whose init returned
// an error, per spec.md §4.3 step 7's "invokes unload-path (steps
// reversed)".
func (r *Registry) unloadFailedLoad(id ModID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.modules[id]
	if !ok {
		return
	}
	rec.State = Error
	r.retractExportsLocked(rec)
	r.unresolveDependenciesLocked(id, rec.Dependencies)
	delete(r.modules, id)
	delete(r.byName, rec.Name)
	delete(r.bodies, id)
	r.freeIDs = append(r.freeIDs, id)
}

// Resolve implements spec.md §4.3's resolve(name): a linear/hashed
// lookup across the flat global symbol set. Every resolution is
// counted.
func (r *Registry) Resolve(name string) (uintptr, ModID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveCount++
	sym, ok := r.symbols[name]
	if !ok {
		return 0, 0, kerr.New(kerr.NoSuchId, "symbol not found: "+name)
	}
	return sym.address, sym.moduleID, nil
}

// ResolveCount reports the number of Resolve calls made so far.
func (r *Registry) ResolveCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveCount
}

// Call invokes one exported function of a loaded module by name,
// through the module's sandbox (check_function_call), tracking the
// in-flight entry counter hot-swap's quiescent-point check relies on.
func (r *Registry) Call(id ModID, name string, args []byte) ([]byte, error) {
	r.mu.Lock()
	rec, ok := r.modules[id]
	if !ok {
		r.mu.Unlock()
		return nil, kerr.New(kerr.NoSuchId, "call: no such module")
	}
	if rec.State != Running && rec.State != Loaded {
		r.mu.Unlock()
		return nil, kerr.New(kerr.StateInvalid, "call: module not Loaded/Running")
	}
	sb := rec.Sandbox
	body := r.bodies[id]
	fn, hasFn := body.Functions[name]
	rec.entryCounter++
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		rec.entryCounter--
		r.mu.Unlock()
	}()

	if err := sb.CheckFunctionCall(name); err != nil {
		r.mu.Lock()
		rec.Stats.ErrorCount++
		r.mu.Unlock()
		return nil, err
	}
	if !hasFn {
		return nil, kerr.New(kerr.NoSuchId, "call: no such export: "+name)
	}
	out, err := fn(&CallContext{Self: id}, args)
	r.mu.Lock()
	rec.Stats.FunctionCalls++
	if err != nil {
		rec.Stats.ErrorCount++
	}
	r.mu.Unlock()
	return out, err
}

// Unload implements spec.md §4.3's unload pipeline.
func (r *Registry) Unload(id ModID) error {
	r.mu.Lock()
	rec, ok := r.modules[id]
	if !ok {
		r.mu.Unlock()
		return kerr.New(kerr.NoSuchId, "unload")
	}
	if rec.Flags.Has(FlagCore) {
		r.mu.Unlock()
		return kerr.New(kerr.StateInvalid, "unload: module is Core")
	}
	if len(rec.Dependents) > 0 {
		r.mu.Unlock()
		return kerr.New(kerr.StateInvalid, "unload: module has dependents")
	}
	rec.State = Unloading
	body := r.bodies[id]
	r.mu.Unlock()

	if body != nil && body.Exit != nil {
		// exit errors are logged, never block unload
		if err := body.Exit(&CallContext{Self: id}); err != nil {
			klog.Warnf("module %s: exit failed during unload: %v", rec.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.retractExportsLocked(rec)
	r.unresolveDependenciesLocked(id, rec.Dependencies)
	delete(r.modules, id)
	delete(r.byName, rec.Name)
	delete(r.bodies, id)
	r.freeIDs = append(r.freeIDs, id)
	return nil
}

// Snapshot returns a shallow copy of a module record for introspection.
func (r *Registry) Snapshot(id ModID) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.modules[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// SnapshotAll returns a shallow copy of every loaded module record.
func (r *Registry) SnapshotAll() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.modules))
	for _, rec := range r.modules {
		out = append(out, *rec)
	}
	return out
}

// AdjustBehaviorScore changes a module's behavior score by delta,
// clamped to [0,100], mirroring bollywood.Engine's actor-side rule so
// kernel/supervisor applies the same update rule to both entity kinds.
func (r *Registry) AdjustBehaviorScore(id ModID, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.modules[id]
	if !ok {
		return kerr.New(kerr.NoSuchId, "adjust behavior score")
	}
	score := rec.Stats.BehaviorScore + delta
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	rec.Stats.BehaviorScore = score
	return nil
}

// IncrementAnomalyCounter bumps a module's anomaly tally.
func (r *Registry) IncrementAnomalyCounter(id ModID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.modules[id]
	if !ok {
		return kerr.New(kerr.NoSuchId, "increment anomaly counter")
	}
	rec.Stats.AnomalyCounter++
	return nil
}

// ByName looks up a module's id by its declared name.
func (r *Registry) ByName(name string) (ModID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	return id, ok
}
