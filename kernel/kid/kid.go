// Package kid holds the dense identity types shared across the module
// registry, the sandbox engine, and the supervisor surface. It exists
// so those packages can refer to each other's subjects (a sandbox is
// bound to a ModuleID; the registry asks the sandbox engine about a
// ModuleID) without an import cycle between kernel/module and
// kernel/sandbox — the "arena + dense id, never a pointer chase"
// pattern spec.md's Design Notes §9 calls for.
package kid

// ModuleID is a dense, stable identity for a loaded module record, the
// module-side analogue of bollywood.ActorID.
type ModuleID uint32

// NoModule is the zero value, used where a module reference is absent
// (e.g. the kernel's own bootstrap code, which is not itself a loaded
// module).
const NoModule ModuleID = 0
