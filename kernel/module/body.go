package module

// CallContext is passed to a module's Init/Exit/exported functions. It
// gives native Go module bodies the same narrow surface spec.md's
// "dynamic dispatch of module init/exit/ioctl" design note describes —
// three fixed function-pointer slots, no vtable — while substituting a
// Go closure for the machine code a real kernel would jump into at
// entry_offset. Executing an actual relocated machine-code image is
// outside what a hosted Go process can do; every module body in this
// implementation is therefore a native Go closure registered at Load
// time, exercised the same way the image's declared exports are
// resolved and called. See DESIGN.md.
type CallContext struct {
	Self ModID
}

// Body is the native implementation backing a loaded image: the
// exported-function table a real kernel would reach via relocation,
// here a plain Go map keyed by the same names the image header's
// symbol table declares.
type Body struct {
	Init      func(ctx *CallContext) error
	Exit      func(ctx *CallContext) error
	Functions map[string]func(ctx *CallContext, args []byte) ([]byte, error)
}
