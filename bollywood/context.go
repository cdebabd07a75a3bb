package bollywood

// Context is what an actor's Entry function uses to talk to the engine:
// send, the three suspension points (Receive is non-blocking and not a
// suspension point), and reply. It generalizes the teacher's
// vendor/.../bollywood/context.go Context interface (Engine/Self/Sender/
// Message) with the Wait/Yield/SyncSend/Reply surface the teacher's
// game package called but whose bollywood copy never defined
// (engine.Ask, ctx.RequestID, ctx.Reply) — see DESIGN.md.
type Context interface {
	// Engine returns the Engine managing this actor.
	Engine() *Engine
	// Self returns the PID of the actor running this context.
	Self() PID

	// Send delivers an Async message, never blocking the caller.
	Send(recipient PID, kind Kind, payload []byte) error
	// Broadcast sends kind/payload independently to every PID in
	// recipients, returning a per-recipient error slice (nil entry on
	// success).
	Broadcast(recipients []PID, kind Kind, payload []byte) []error

	// Receive is non-blocking: it returns the mailbox head immediately,
	// or (nil, false) if empty. Never a suspension point.
	Receive() (*Message, bool)
	// Wait blocks the calling actor until a message arrives or
	// timeoutTicks elapse (0 = return immediately if empty, matching
	// spec.md's boundary test for wait(timeout=0)). Returns the message
	// and whether the wake was due to a timeout (msg is nil on timeout).
	Wait(timeoutTicks uint64) (msg *Message, timedOut bool)
	// Yield gives up the remainder of this turn and re-enters the ready
	// queue at the actor's priority class.
	Yield()
	// SyncSend sends a SyncRequest to recipient and blocks until the
	// matching SyncReply arrives or timeoutTicks elapse.
	SyncSend(recipient PID, payload []byte, timeoutTicks uint64) (*Message, error)
	// Reply answers a message that had RequiresReply set, routing a
	// SyncReply to its ReplyTo with the same message id.
	Reply(request *Message, payload []byte) error

	// Release returns a message's payload and slot; must be called by
	// whoever consumed it via Receive/Wait/SyncSend once done.
	Release(msg *Message)
}

type context struct {
	engine *Engine
	self   PID
}

func (c *context) Engine() *Engine { return c.engine }
func (c *context) Self() PID       { return c.self }

func (c *context) Send(recipient PID, kind Kind, payload []byte) error {
	_, err := c.engine.sendFrom(c.self, recipient, kind, payload, false, PID{}, 0, false)
	return err
}

func (c *context) Broadcast(recipients []PID, kind Kind, payload []byte) []error {
	errs := make([]error, len(recipients))
	for i, r := range recipients {
		errs[i] = c.Send(r, kind, payload)
	}
	return errs
}

func (c *context) Receive() (*Message, bool) {
	return c.engine.receiveNonBlocking(c.self)
}

func (c *context) Wait(timeoutTicks uint64) (*Message, bool) {
	return c.engine.wait(c.self, timeoutTicks)
}

func (c *context) Yield() {
	c.engine.yield(c.self)
}

func (c *context) SyncSend(recipient PID, payload []byte, timeoutTicks uint64) (*Message, error) {
	return c.engine.syncSend(c.self, recipient, payload, timeoutTicks)
}

func (c *context) Reply(request *Message, payload []byte) error {
	return c.engine.reply(c.self, request, payload)
}

func (c *context) Release(msg *Message) {
	c.engine.release(msg)
}
