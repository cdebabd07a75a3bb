package module

import "github.com/lguibr/actorkernel/kerr"

// Swap implements spec.md §4.3's hot-swap: stage the new image into a
// second region without publishing its exports, then — only at a
// quiescent point where no call is currently in flight inside the old
// image's exported code (entryCounter == 0) — atomically retarget the
// symbol table, call the old exit, call the new init. A failing new
// init rolls back to the old image and reports error; the old image is
// only discarded on success.
//
// Swap requires the target's HotSwap flag and that it is Loaded or
// Running, per spec.md §4.3. If a call is currently in flight, it
// returns kerr.HotSwapBusy — the documented "retry at next yield"
// contract, since this implementation never blocks a caller inside
// Swap waiting for quiescence.
func (r *Registry) Swap(id ModID, buf []byte, newBody Body) error {
	parsed, err := ValidateImage(buf)
	if err != nil {
		return err
	}

	r.mu.Lock()
	rec, ok := r.modules[id]
	if !ok {
		r.mu.Unlock()
		return kerr.New(kerr.NoSuchId, "swap")
	}
	if !rec.Flags.Has(FlagHotSwap) {
		r.mu.Unlock()
		return kerr.New(kerr.StateInvalid, "swap: module does not have HotSwap flag")
	}
	if rec.State != Loaded && rec.State != Running {
		r.mu.Unlock()
		return kerr.New(kerr.StateInvalid, "swap: module not Loaded/Running")
	}
	if parsed.Header.Name != rec.Name {
		r.mu.Unlock()
		return kerr.New(kerr.ValidationFailed, "swap: image name does not match target module")
	}
	if rec.entryCounter != 0 {
		r.mu.Unlock()
		return kerr.New(kerr.HotSwapBusy, "swap: calls still in flight")
	}

	oldExports := rec.Exports
	oldBody := r.bodies[id]
	oldState := rec.State
	oldBase := rec.Base
	oldCodeSize, oldDataSize, oldBSSSize := rec.CodeSize, rec.DataSize, rec.BSSSize
	oldEntryOffset, oldExitOffset, oldVersion := rec.EntryOffset, rec.ExitOffset, rec.ModuleVersion

	newBase := r.allocBase(parsed.Header.CodeSize + parsed.Header.DataSize + parsed.Header.BSSSize)

	// Retract old exports and stage new ones; a collision against some
	// OTHER module's export still fails the swap and must restore the
	// old exports untouched.
	r.retractExportsLocked(rec)
	rec.Exports = parsed.Symbols
	rec.Base = newBase
	if err := r.publishExportsLocked(rec); err != nil {
		rec.Exports = oldExports
		rec.Base = oldBase
		_ = r.publishExportsLocked(rec)
		r.mu.Unlock()
		return err
	}
	rec.CodeSize = parsed.Header.CodeSize
	rec.DataSize = parsed.Header.DataSize
	rec.BSSSize = parsed.Header.BSSSize
	rec.EntryOffset = parsed.Header.EntryOffset
	rec.ExitOffset = parsed.Header.ExitOffset
	rec.ModuleVersion = parsed.Header.ModuleVersion
	newBodyCopy := newBody
	r.bodies[id] = &newBodyCopy
	r.mu.Unlock()

	if oldBody != nil && oldBody.Exit != nil {
		_ = oldBody.Exit(&CallContext{Self: id})
	}

	if newBody.Init != nil {
		if err := newBody.Init(&CallContext{Self: id}); err != nil {
			// Roll back to the old image: retract the new exports,
			// restore the old ones, restore the old body, report error.
			r.mu.Lock()
			r.retractExportsLocked(rec)
			rec.Exports = oldExports
			rec.Base = oldBase
			rec.CodeSize, rec.DataSize, rec.BSSSize = oldCodeSize, oldDataSize, oldBSSSize
			rec.EntryOffset, rec.ExitOffset, rec.ModuleVersion = oldEntryOffset, oldExitOffset, oldVersion
			r.publishExportsLocked(rec)
			r.bodies[id] = oldBody
			rec.State = oldState
			r.mu.Unlock()
			return kerr.Wrap(kerr.ValidationFailed, "swap: new module init failed, rolled back", err)
		}
	}

	r.mu.Lock()
	rec.Sandbox.UnregisterRegion(oldBase, uintptr(oldCodeSize+oldDataSize+oldBSSSize))
	rec.Sandbox.RegisterRegion(newBase, uintptr(rec.CodeSize+rec.DataSize+rec.BSSSize))
	r.mu.Unlock()
	return nil
}
