// Package kctx is the single-owner wiring point for a booted kernel: one
// bollywood.Engine, one module.Registry, one supervisor.Supervisor and
// one interrupt.Registry, constructed from a single Config the way
// main.go wires the teacher's engine/room-manager/server triple from
// utils.DefaultConfig(). Nothing outside this package constructs those
// four directly once a KernelContext exists.
package kctx

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lguibr/actorkernel/bollywood"
	"github.com/lguibr/actorkernel/kerr"
	"github.com/lguibr/actorkernel/kernel/interrupt"
	"github.com/lguibr/actorkernel/kernel/module"
	"github.com/lguibr/actorkernel/kernel/supervisor"
	"github.com/lguibr/actorkernel/klog"
)

// Config carries every tunable named or implied by the core triad,
// grounded on utils.Config's flat-struct-of-every-knob shape.
type Config struct {
	Engine     bollywood.Config
	Module     module.Config
	Supervisor supervisor.Config

	// DispatchIdleSleep is how long the run loop parks when Dispatch
	// found nothing Ready, so it doesn't spin a bare CPU core while
	// every actor is Blocked waiting on a timer or a sync reply.
	DispatchIdleSleep time.Duration
}

// DefaultConfig mirrors the individually-documented defaults of each
// wired subsystem, the way utils.DefaultConfig() composes per-feature
// defaults into one Config.
func DefaultConfig() Config {
	return Config{
		Engine:            bollywood.DefaultConfig(),
		Module:            module.DefaultConfig(),
		Supervisor:        supervisor.DefaultConfig(),
		DispatchIdleSleep: time.Millisecond,
	}
}

// FastTestConfig shrinks the actor and module tables, the mailbox caps,
// the timeslice and the sweep period the way utils.FastGameConfig()
// shrinks the playing field for quick test runs; sandbox and supervisor
// settings keep their defaults.
func FastTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Engine.MaxActors = 16
	cfg.Engine.DefaultMailboxCap = 8
	cfg.Engine.KernelMailboxCap = 16
	cfg.Engine.Timeslice = 4
	cfg.Engine.SupervisorSweepTicks = 8
	cfg.Module.MaxModules = 16
	cfg.DispatchIdleSleep = 0
	return cfg
}

// KernelContext is the booted kernel: every subsystem an operator or
// the AI supervisor collaborator reaches is hung off of this struct.
type KernelContext struct {
	BootID uuid.UUID
	Config Config

	Engine     *bollywood.Engine
	Modules    *module.Registry
	Supervisor *supervisor.Supervisor
	Interrupts *interrupt.Registry

	mu      sync.Mutex
	faulted bool
	reason  string

	stopCh chan struct{}
	doneCh chan struct{}
}

// New boots a KernelContext: constructs the engine, the module
// registry, the supervisor and the interrupt registry, and wires the
// supervisor's periodic sweep into the engine's timer hook. Mirrors
// main.go's "load config, construct engine, spawn root actor" sequence
// minus the root actor spawn, which is the caller's job (internal
// collaborator modules are not named by this package).
func New(cfg Config) *KernelContext {
	engine := bollywood.NewEngine(cfg.Engine)
	registry := module.NewRegistry(cfg.Module)
	registry.SetTickSource(engine)
	sup := supervisor.New(engine, registry, cfg.Supervisor)
	interrupts := interrupt.NewRegistry()

	kc := &KernelContext{
		BootID:     uuid.New(),
		Config:     cfg,
		Engine:     engine,
		Modules:    registry,
		Supervisor: sup,
		Interrupts: interrupts,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}

	engine.OnSupervisorSweep = sup.Sweep

	klog.Infof("kernel boot %s: MaxActors=%d MaxModules=%d Timeslice=%d",
		kc.BootID, cfg.Engine.MaxActors, cfg.Module.MaxModules, cfg.Engine.Timeslice)

	return kc
}

// Run drives the cooperative dispatch loop on the calling goroutine
// until Stop is called, the way main.go blocks on http.ListenAndServe.
// Call it from its own goroutine when a caller also needs to serve
// debugsrv or a CLI command loop concurrently.
func (kc *KernelContext) Run() {
	defer close(kc.doneCh)
	for {
		select {
		case <-kc.stopCh:
			return
		default:
		}

		if kc.Faulted() {
			return
		}

		ran := kc.Engine.Dispatch()
		kc.Engine.TimerTick()

		if !ran && kc.Config.DispatchIdleSleep > 0 {
			time.Sleep(kc.Config.DispatchIdleSleep)
		}
	}
}

// Stop signals Run's loop to exit and waits for it to return, mirroring
// main.go's "Shutting down engine..." shutdown branch.
func (kc *KernelContext) Stop() {
	select {
	case <-kc.stopCh:
	default:
		close(kc.stopCh)
	}
	<-kc.doneCh
	kc.Engine.Shutdown()
}

// Fault flips the context into a halted state and refuses all further
// scheduling. Corruption is the one kerr.Kind that is fatal rather than
// recoverable (spec.md §7's "system panic"): Run observes Faulted() and
// exits on its next loop iteration instead of continuing to dispatch
// into a kernel that detected an invariant break.
func (kc *KernelContext) Fault(reason string) {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	if kc.faulted {
		return
	}
	kc.faulted = true
	kc.reason = reason
	klog.Errorf("kernel %s: FAULT: %s", kc.BootID, reason)
}

// Faulted reports whether Fault has been called.
func (kc *KernelContext) Faulted() bool {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	return kc.faulted
}

// FaultReason returns the detail passed to Fault, or "" if never
// faulted.
func (kc *KernelContext) FaultReason() string {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	return kc.reason
}

// CheckCorruption is the narrow bridge named in SPEC_FULL.md §A.2:
// wherever a caller detects kerr.Corruption it should route the error
// through here rather than just returning it, so a corruption anywhere
// in the kernel halts the whole context rather than leaving it running
// in an inconsistent state.
func (kc *KernelContext) CheckCorruption(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kerr.Corruption) {
		kc.Fault(err.Error())
	}
	return err
}

// RegisterInterrupt binds an interrupt vector to an actor, per spec.md
// §6's interrupt_register(vector, actor_id) contract.
func (kc *KernelContext) RegisterInterrupt(vector interrupt.Vector, target bollywood.PID) {
	kc.Interrupts.Register(vector, target)
}

// FireInterrupt synthesizes and enqueues an interrupt frame for vector,
// per spec.md §5's "interrupt stub enqueues one bounded message and
// returns."
func (kc *KernelContext) FireInterrupt(vector interrupt.Vector, errorCode, cpuID uint32, framePtr uintptr) error {
	return kc.Interrupts.Fire(kc.Engine, vector, errorCode, cpuID, framePtr)
}
