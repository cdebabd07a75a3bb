package supervisor

import (
	"testing"

	"github.com/lguibr/actorkernel/bollywood"
	"github.com/lguibr/actorkernel/kernel/module"
	"github.com/lguibr/actorkernel/kernel/sandbox"
	"github.com/stretchr/testify/require"
)

func testEngine() *bollywood.Engine {
	cfg := bollywood.DefaultConfig()
	cfg.MaxActors = 16
	cfg.DefaultMailboxCap = 4
	return bollywood.NewEngine(cfg)
}

func testRegistry() *module.Registry {
	cfg := module.DefaultConfig()
	cfg.MaxModules = 16
	return module.NewRegistry(cfg)
}

func spawnIdle(t *testing.T, e *bollywood.Engine) bollywood.PID {
	t.Helper()
	pid, err := e.Spawn(func(ctx bollywood.Context, _ interface{}) {
		ctx.Wait(0)
	}, nil, bollywood.Normal, 4096)
	require.NoError(t, err)
	require.NoError(t, e.Start(pid.ID))
	return pid
}

func loadModule(t *testing.T, r *module.Registry, name string, level sandbox.Level) module.ModID {
	t.Helper()
	h := module.Header{Name: name, ModuleVersion: 1}
	buf := module.BuildImage(h, []byte{0x90}, nil, nil, nil)
	id, err := r.Load(buf, module.Body{}, level)
	require.NoError(t, err)
	return id
}

func TestBehaviorSnapshotActorAndModule(t *testing.T) {
	e := testEngine()
	r := testRegistry()
	sup := New(e, r, DefaultConfig())

	pid := spawnIdle(t, e)
	modID := loadModule(t, r, "mod_watched", sandbox.User)

	snap, err := sup.BehaviorSnapshot(EntityRef{Kind: ActorEntity, ActorID: pid.ID})
	require.NoError(t, err)
	require.Equal(t, 0, snap.BehaviorScore)

	snap, err = sup.BehaviorSnapshot(EntityRef{Kind: ModuleEntity, ModID: modID})
	require.NoError(t, err)
	require.Equal(t, 0, snap.AnomalyCounter)
}

func TestBehaviorSnapshotRejectsUnknownEntity(t *testing.T) {
	e := testEngine()
	r := testRegistry()
	sup := New(e, r, DefaultConfig())
	_, err := sup.BehaviorSnapshot(EntityRef{Kind: ActorEntity, ActorID: 99})
	require.Error(t, err)
}

func TestAnomalyReportPenalizesScoreAndCountsAnomaly(t *testing.T) {
	e := testEngine()
	r := testRegistry()
	sup := New(e, r, DefaultConfig())
	pid := spawnIdle(t, e)

	require.NoError(t, e.AdjustBehaviorScore(pid.ID, 100))
	require.NoError(t, sup.AnomalyReport(ResourceAbuse, EntityRef{Kind: ActorEntity, ActorID: pid.ID}, "erratic send pattern"))

	snap, err := sup.BehaviorSnapshot(EntityRef{Kind: ActorEntity, ActorID: pid.ID})
	require.NoError(t, err)
	require.Equal(t, 1, snap.AnomalyCounter)
	require.Equal(t, 85, snap.BehaviorScore)
}

func TestThrottleEntityDelegatesToEngine(t *testing.T) {
	e := testEngine()
	r := testRegistry()
	sup := New(e, r, DefaultConfig())
	pid := spawnIdle(t, e)
	require.NoError(t, sup.ThrottleEntity(pid.ID, 50, 0))
}

func TestInterveneSuspendAndResume(t *testing.T) {
	e := testEngine()
	r := testRegistry()
	sup := New(e, r, DefaultConfig())
	pid := spawnIdle(t, e)

	require.NoError(t, sup.Intervene(OpSuspend, EntityRef{Kind: ActorEntity, ActorID: pid.ID}))
	a, ok := e.Snapshot(pid.ID)
	require.True(t, ok)
	require.Equal(t, bollywood.Suspended, a.State)

	require.NoError(t, sup.Intervene(OpResume, EntityRef{Kind: ActorEntity, ActorID: pid.ID}))
	a, ok = e.Snapshot(pid.ID)
	require.True(t, ok)
	require.Equal(t, bollywood.Ready, a.State)
}

func TestInterveneQuarantineModule(t *testing.T) {
	e := testEngine()
	r := testRegistry()
	sup := New(e, r, DefaultConfig())
	modID := loadModule(t, r, "mod_bad", sandbox.User)

	require.NoError(t, sup.Intervene(OpQuarantineModule, EntityRef{Kind: ModuleEntity, ModID: modID}))

	rec, ok := r.Snapshot(modID)
	require.True(t, ok)
	require.Equal(t, sandbox.Quarantine, rec.Sandbox.Level())
}

func TestInterveneRejectsWrongEntityKind(t *testing.T) {
	e := testEngine()
	r := testRegistry()
	sup := New(e, r, DefaultConfig())
	modID := loadModule(t, r, "mod_kind", sandbox.User)

	err := sup.Intervene(OpSuspend, EntityRef{Kind: ModuleEntity, ModID: modID})
	require.Error(t, err)
}

// TestSweepRecoversCleanModuleAndLeavesViolatingModuleAlone covers
// SPEC_FULL.md §C's recovery rule: a module with no new violations
// since the last sweep recovers points; one that violated again is left
// untouched this round.
func TestSweepRecoversCleanModuleAndLeavesViolatingModuleAlone(t *testing.T) {
	e := testEngine()
	r := testRegistry()
	sup := New(e, r, DefaultConfig())

	cleanID := loadModule(t, r, "mod_clean", sandbox.User)
	dirtyID := loadModule(t, r, "mod_dirty", sandbox.User)

	require.NoError(t, r.AdjustBehaviorScore(cleanID, 100))
	require.NoError(t, r.AdjustBehaviorScore(cleanID, -50))
	require.NoError(t, r.AdjustBehaviorScore(dirtyID, 100))
	require.NoError(t, r.AdjustBehaviorScore(dirtyID, -50))

	sup.Sweep(1) // first sweep: both at 0 violations vs. the default zero baseline, both recover

	dirtyRec, _ := r.Snapshot(dirtyID)
	dirtyRec.Sandbox.Violate(sandbox.PolicyViolation, "exec", "attempted exec")

	sup.Sweep(2) // second sweep: dirty's violation count grew since sweep 1, clean's didn't

	cleanRec, _ := r.Snapshot(cleanID)
	dirtyRec, _ = r.Snapshot(dirtyID)
	require.Equal(t, 52, cleanRec.Stats.BehaviorScore)
	require.Equal(t, 51, dirtyRec.Stats.BehaviorScore)
}
