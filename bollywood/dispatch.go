package bollywood

// Dispatch runs exactly one actor's turn to completion: it selects the
// next Ready actor by priority class (strict priority across classes,
// FIFO/round-robin within a class, which also yields least-recently-
// scheduled ordering since an actor is always re-enqueued at its
// class's tail), grants it the turn token, and blocks until that actor
// reaches a suspension point or terminates. Returns false if there was
// nothing Ready to run.
//
// The caller (kernel/kctx's run loop, or a test) is expected to call
// Dispatch and TimerTick from a single driver goroutine; Dispatch
// itself is what makes "at most one actor Running at a time" true.
func (e *Engine) Dispatch() bool {
	e.mu.Lock()
	id, found := e.pickNextLocked()
	if !found {
		e.mu.Unlock()
		return false
	}
	s := e.actors[id]
	s.actor.State = Running
	s.turnStartTick = e.tick
	s.forceYield = false
	s.actor.Stats.LastScheduledTick = e.tick
	s.actor.Stats.ContextSwitches++
	e.hasRunning = true
	e.runningID = id
	e.contextSwitches++
	e.mu.Unlock()

	s.resume <- turnGrant{}
	sig := <-s.yielded

	e.mu.Lock()
	e.hasRunning = false
	term := s.terminateRequested

	switch {
	case term:
		e.mu.Unlock()
		if sig.reason != reasonFinished && sig.reason != reasonError {
			s.resume <- turnGrant{terminated: true}
		}
		return true
	case sig.reason == reasonFinished:
		s.actor.State = Finished
	case sig.reason == reasonError:
		s.actor.State = Error
	case sig.reason == reasonBlockedWait || sig.reason == reasonBlockedSync:
		s.actor.State = Blocked
		e.blocked[id] = sig.deadline
	case sig.reason == reasonYield || sig.reason == reasonTimesliceYield:
		s.actor.State = Ready
		e.enqueueReadyLocked(id)
	}
	e.mu.Unlock()
	return true
}

// pickNextLocked implements spec.md §4.2's selection policy: strict
// priority across classes, FIFO within a class, and the kernel actor
// selected only when no other actor anywhere is Ready. Must be called
// with e.mu held.
func (e *Engine) pickNextLocked() (ActorID, bool) {
	var throttled ActorID
	haveThrottled := false
	for p := Critical; p < numPriorities; p++ {
		q := e.ready[p]
		// Each actor in the class gets at most one skip-or-pick attempt
		// per call so a fully-throttled class still yields to the next
		// priority class instead of spinning.
		for attempts := len(q); attempts > 0; attempts-- {
			id := q[0]
			q = q[1:]
			s := e.actors[id]
			if s.throttlePercent > 0 && e.shouldSkipThrottledLocked(s) {
				if !haveThrottled {
					throttled, haveThrottled = id, true
				}
				q = append(q, id)
				continue
			}
			e.ready[p] = q
			return id, true
		}
		e.ready[p] = q
	}
	// Every Ready actor was skipped by its throttle: run the first one
	// skipped rather than idling or picking the kernel actor over it.
	if haveThrottled {
		e.removeFromSchedulingLocked(throttled)
		return throttled, true
	}
	if s, ok := e.actors[KernelActorID]; ok && s.actor.State == Ready {
		return KernelActorID, true
	}
	return 0, false
}

// shouldSkipThrottledLocked implements the throttle weight: it clears an
// expired throttle outright (never skipping in that case), otherwise
// skips roughly s.throttlePercent% of selection attempts using a
// deterministic counter rather than randomness, so behavior stays
// reproducible in tests.
func (e *Engine) shouldSkipThrottledLocked(s *slot) bool {
	if s.throttleUntilTick != 0 && e.tick >= s.throttleUntilTick {
		s.throttlePercent = 0
		s.actor.Stats.ThrottlePercent = 0
		s.throttleUntilTick = 0
		return false
	}
	s.throttleSkipCounter++
	return int(s.throttleSkipCounter%100) < s.throttlePercent
}

// TimerTick advances the logical clock by one tick. It is the external
// timer collaborator spec.md §6 names: it accrues CPU time for the
// Running actor, marks a forced yield once its timeslice has elapsed,
// wakes any Blocked actor whose deadline has passed, and (on the
// configured schedule) invokes OnSupervisorSweep.
func (e *Engine) TimerTick() {
	e.mu.Lock()
	e.tick++
	tick := e.tick

	if e.hasRunning {
		if s, ok := e.actors[e.runningID]; ok {
			s.actor.Stats.CPUTime++
			if tick-s.turnStartTick >= e.cfg.Timeslice {
				s.forceYield = true
			}
		}
	}

	var woken []ActorID
	for id, deadline := range e.blocked {
		if deadline != 0 && tick >= deadline {
			woken = append(woken, id)
		}
	}
	for _, id := range woken {
		delete(e.blocked, id)
		if s, ok := e.actors[id]; ok && s.actor.State == Blocked {
			s.actor.State = Ready
			e.enqueueReadyLocked(id)
		}
	}

	var sweep bool
	if e.cfg.SupervisorSweepTicks > 0 && tick%e.cfg.SupervisorSweepTicks == 0 {
		sweep = true
	}
	hook := e.OnSupervisorSweep
	e.mu.Unlock()

	if sweep && hook != nil {
		hook(tick)
	}
}

// Tick returns the current logical clock value.
func (e *Engine) Tick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}
