package debugsrv

import (
	"net/http"

	"github.com/lguibr/actorkernel/bollywood"
	"github.com/lguibr/actorkernel/kernel/module"
	"github.com/lguibr/actorkernel/kernel/sandbox"
)

// statusView is /status/'s payload: the boot identity plus enough
// aggregate counts to answer "is this kernel alive and healthy" at a
// glance, the same role HandleHealthCheck plays for the teacher's
// server but widened to kernel-level facts.
type statusView struct {
	BootID       string `json:"boot_id"`
	Faulted      bool   `json:"faulted"`
	FaultReason  string `json:"fault_reason,omitempty"`
	Tick         uint64 `json:"tick"`
	ActorCount   int    `json:"actor_count"`
	ModuleCount  int    `json:"module_count"`
	ResolveCount uint64 `json:"resolve_count"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	defer recoverHTTP(w, "status")
	if !requireGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, s.statusSnapshot())
}

func (s *Server) statusSnapshot() statusView {
	v := statusView{
		BootID:       s.kc.BootID.String(),
		Faulted:      s.kc.Faulted(),
		Tick:         s.kc.Engine.Tick(),
		ActorCount:   len(s.kc.Engine.SnapshotAll()),
		ModuleCount:  len(s.kc.Modules.SnapshotAll()),
		ResolveCount: s.kc.Modules.ResolveCount(),
	}
	if v.Faulted {
		v.FaultReason = s.kc.FaultReason()
	}
	return v
}

// actorView is one row of the /actors/ table: the fields a debug
// operator needs to see an actor is stuck, throttled, or misbehaving,
// pulled straight off bollywood.Actor/Stats.
type actorView struct {
	ID               bollywood.ActorID `json:"id"`
	State            string            `json:"state"`
	Priority         string            `json:"priority"`
	CPUTime          uint64            `json:"cpu_time"`
	MessagesSent     uint64            `json:"messages_sent"`
	MessagesReceived uint64            `json:"messages_received"`
	BehaviorScore    int               `json:"behavior_score"`
	AnomalyCounter   int               `json:"anomaly_counter"`
	ContextSwitches  uint64            `json:"context_switches"`
}

func (s *Server) handleActors(w http.ResponseWriter, r *http.Request) {
	defer recoverHTTP(w, "actors")
	if !requireGet(w, r) {
		return
	}
	actors := s.kc.Engine.SnapshotAll()
	out := make([]actorView, 0, len(actors))
	for _, a := range actors {
		out = append(out, actorView{
			ID:               a.ID,
			State:            a.State.String(),
			Priority:         a.Priority.String(),
			CPUTime:          a.Stats.CPUTime,
			MessagesSent:     a.Stats.MessagesSent,
			MessagesReceived: a.Stats.MessagesReceived,
			BehaviorScore:    a.Stats.BehaviorScore,
			AnomalyCounter:   a.Stats.AnomalyCounter,
			ContextSwitches:  a.Stats.ContextSwitches,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// moduleView is one row of the /modules/ table.
type moduleView struct {
	ID             module.ModID `json:"id"`
	Name           string       `json:"name"`
	State          string       `json:"state"`
	Level          string       `json:"level"`
	BehaviorScore  int          `json:"behavior_score"`
	AnomalyCounter int          `json:"anomaly_counter"`
	FunctionCalls  uint64       `json:"function_calls"`
	ErrorCount     uint64       `json:"error_count"`
	Quarantined    bool         `json:"quarantined"`
}

func moduleViewOf(rec module.Record) moduleView {
	v := moduleView{
		ID:             rec.ID,
		Name:           rec.Name,
		State:          rec.State.String(),
		BehaviorScore:  rec.Stats.BehaviorScore,
		AnomalyCounter: rec.Stats.AnomalyCounter,
		FunctionCalls:  rec.Stats.FunctionCalls,
		ErrorCount:     rec.Stats.ErrorCount,
	}
	if rec.Sandbox != nil {
		level := rec.Sandbox.Level()
		v.Level = level.String()
		v.Quarantined = level == sandbox.Quarantine
	}
	return v
}

func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	defer recoverHTTP(w, "modules")
	if !requireGet(w, r) {
		return
	}
	id, ok := trailingID(r.URL.Path, "/modules/")
	if !ok {
		mods := s.kc.Modules.SnapshotAll()
		out := make([]moduleView, 0, len(mods))
		for _, rec := range mods {
			out = append(out, moduleViewOf(rec))
		}
		writeJSON(w, http.StatusOK, out)
		return
	}
	rec, found := s.kc.Modules.Snapshot(module.ModID(id))
	if !found {
		http.NotFound(w, r)
		return
	}
	s.renderModuleDetail(w, rec)
}

// violationView is one sandbox violation, JSON-flattened for the feed.
type violationView struct {
	ID          uint64       `json:"id"`
	ModuleID    module.ModID `json:"module_id"`
	Kind        string       `json:"kind"`
	Attempted   string       `json:"attempted"`
	Description string       `json:"description"`
}

func (s *Server) handleViolations(w http.ResponseWriter, r *http.Request) {
	defer recoverHTTP(w, "violations")
	if !requireGet(w, r) {
		return
	}
	var out []violationView
	for _, rec := range s.kc.Modules.SnapshotAll() {
		if rec.Sandbox == nil {
			continue
		}
		for _, v := range rec.Sandbox.Violations() {
			out = append(out, violationView{
				ID: v.ID, ModuleID: v.ModuleID, Kind: v.Kind.String(),
				Attempted: v.Attempted, Description: v.Description,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}
