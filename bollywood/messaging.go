package bollywood

import (
	"runtime"

	"github.com/lguibr/actorkernel/kerr"
)

// Send is the public, non-actor entry point for delivering an Async
// message (used by kernel bootstrap code, interrupt injection, and
// tests). From inside an actor's Entry, use Context.Send instead.
func (e *Engine) Send(sender, recipient PID, kind Kind, payload []byte) error {
	_, err := e.sendFrom(sender, recipient, kind, payload, false, PID{}, 0, false)
	return err
}

// SendSystem delivers a System-kind message, which is allowed one slot
// past the recipient mailbox's configured capacity.
func (e *Engine) SendSystem(sender, recipient PID, payload []byte) error {
	_, err := e.sendFrom(sender, recipient, System, payload, false, PID{}, 0, false)
	return err
}

// Broadcast fans kind/payload out to every recipient independently,
// returning a per-recipient error (nil on success). One recipient's
// MailboxFull does not prevent delivery to the others.
func (e *Engine) Broadcast(sender PID, recipients []PID, kind Kind, payload []byte) []error {
	errs := make([]error, len(recipients))
	for i, r := range recipients {
		_, errs[i] = e.sendFrom(sender, r, kind, payload, false, PID{}, 0, false)
	}
	return errs
}

// sendFrom is the shared enqueue path for Send, Broadcast, SyncSend's
// request leg and Reply's response leg.
func (e *Engine) sendFrom(sender, recipient PID, kind Kind, payload []byte, requiresReply bool, replyTo PID, forcedID uint64, forceID bool) (uint64, error) {
	e.mu.Lock()

	target, ok := e.actors[recipient.ID]
	if !ok {
		e.mu.Unlock()
		return 0, kerr.New(kerr.NoSuchId, recipient.String())
	}

	var id uint64
	if forceID {
		id = forcedID
	} else {
		id = e.allocMessageID()
	}

	msg := acquireMessage()
	msg.ID = id
	msg.Sender = sender
	msg.Recipient = recipient
	msg.Kind = kind
	msg.Priority = target.actor.Priority
	msg.Timestamp = e.tick
	msg.RequiresReply = requiresReply
	if requiresReply {
		msg.ReplyTo = replyTo
		msg.HasReplyTo = true
	}
	msg.Payload = clone(payload)

	if !target.actor.Mailbox.enqueue(msg) {
		e.mu.Unlock()
		releaseToPool(msg)
		return 0, kerr.New(kerr.MailboxFull, recipient.String())
	}

	if s, exists := e.actors[sender.ID]; exists {
		s.actor.Stats.MessagesSent++
	}

	wasBlocked := target.actor.State == Blocked
	if wasBlocked {
		target.actor.State = Ready
		delete(e.blocked, recipient.ID)
		e.enqueueReadyLocked(recipient.ID)
	}
	e.mu.Unlock()

	return id, nil
}

// receiveNonBlocking implements Context.Receive: it never suspends.
func (e *Engine) receiveNonBlocking(self PID) (*Message, bool) {
	s := e.mustSlot(self.ID)
	msg, ok := s.actor.Mailbox.dequeue()
	if ok {
		e.mu.Lock()
		s.actor.Stats.MessagesReceived++
		e.mu.Unlock()
	}
	return msg, ok
}

// release implements Context.Release.
func (e *Engine) release(msg *Message) {
	if msg == nil {
		return
	}
	releaseToPool(msg)
}

// maybeForceYield performs a single forced yield round trip if the
// scheduler marked this actor's timeslice expired since its last
// suspension point. It is the only place a timeslice expiry becomes
// observable to the actor, per spec.md §4.2's note that preemption is
// cooperative: the kernel can only request a yield, never force one
// mid-computation.
func (e *Engine) maybeForceYield(s *slot) {
	e.mu.Lock()
	force := s.forceYield
	if force {
		s.forceYield = false
		s.actor.Stats.TimesliceExpiries++
	}
	e.mu.Unlock()
	if !force {
		return
	}
	s.yielded <- suspendSignal{reason: reasonTimesliceYield}
	grant := <-s.resume
	if grant.terminated {
		runtime.Goexit()
	}
}

// wait implements Context.Wait.
func (e *Engine) wait(self PID, timeoutTicks uint64) (*Message, bool) {
	s := e.mustSlot(self.ID)
	e.maybeForceYield(s)

	if msg, ok := s.actor.Mailbox.dequeue(); ok {
		e.mu.Lock()
		s.actor.Stats.MessagesReceived++
		e.mu.Unlock()
		return msg, false
	}
	if timeoutTicks == 0 {
		// Boundary case: wait(0) on an empty mailbox behaves like a
		// non-blocking poll, not a suspension.
		return nil, false
	}

	e.mu.Lock()
	deadline := e.tick + timeoutTicks
	s.actor.State = Blocked
	e.blocked[self.ID] = deadline
	e.mu.Unlock()

	s.yielded <- suspendSignal{reason: reasonBlockedWait, deadline: deadline}
	grant := <-s.resume
	if grant.terminated {
		runtime.Goexit()
	}

	if msg, ok := s.actor.Mailbox.dequeue(); ok {
		e.mu.Lock()
		s.actor.Stats.MessagesReceived++
		e.mu.Unlock()
		return msg, false
	}
	return nil, true
}

// yield implements Context.Yield.
func (e *Engine) yield(self PID) {
	s := e.mustSlot(self.ID)
	e.maybeForceYield(s)

	s.yielded <- suspendSignal{reason: reasonYield}
	grant := <-s.resume
	if grant.terminated {
		runtime.Goexit()
	}
}

// syncSend implements Context.SyncSend: send a SyncRequest, then block
// (yielding the turn) until the matching SyncReply is taken out of the
// mailbox or the timeout elapses.
func (e *Engine) syncSend(self, recipient PID, payload []byte, timeoutTicks uint64) (*Message, error) {
	s := e.mustSlot(self.ID)

	reqID, err := e.sendFrom(self, recipient, SyncRequest, payload, true, self, 0, false)
	if err != nil {
		return nil, err
	}

	var deadline uint64
	hasDeadline := timeoutTicks != 0
	if hasDeadline {
		e.mu.Lock()
		deadline = e.tick + timeoutTicks
		e.mu.Unlock()
	}

	for {
		e.maybeForceYield(s)

		if msg, ok := s.actor.Mailbox.takeReply(reqID); ok {
			e.mu.Lock()
			s.actor.Stats.MessagesReceived++
			e.mu.Unlock()
			return msg, nil
		}

		e.mu.Lock()
		now := e.tick
		e.mu.Unlock()
		if hasDeadline && now >= deadline {
			return nil, kerr.New(kerr.StateInvalid, "sync_send timed out waiting for reply")
		}

		e.mu.Lock()
		s.actor.State = Blocked
		if hasDeadline {
			e.blocked[self.ID] = deadline
		} else {
			e.blocked[self.ID] = 0
		}
		e.mu.Unlock()

		s.yielded <- suspendSignal{reason: reasonBlockedSync, deadline: deadline}
		grant := <-s.resume
		if grant.terminated {
			runtime.Goexit()
		}
	}
}

// reply implements Context.Reply.
func (e *Engine) reply(self PID, request *Message, payload []byte) error {
	if request == nil || !request.RequiresReply {
		return kerr.New(kerr.StateInvalid, "message does not require a reply")
	}
	_, err := e.sendFrom(self, request.ReplyTo, SyncReply, payload, false, PID{}, request.ID, true)
	return err
}
