// Package kerr defines the kernel's error taxonomy. Every fallible
// operation in the actor/module/sandbox subsystems returns one of the
// sentinel Kinds below, wrapped with call-site detail, so callers can
// branch with errors.Is without parsing strings.
package kerr

import (
	"errors"
	"fmt"
)

// Kind is one entry of the error taxonomy.
type Kind error

// Sentinel kinds. Compare with errors.Is(err, kerr.NoSuchId), never by
// string match.
var (
	OutOfMemory           Kind = errors.New("out of memory")
	NoSuchId              Kind = errors.New("no such id")
	StateInvalid          Kind = errors.New("invalid state for operation")
	MailboxFull           Kind = errors.New("mailbox full")
	ValidationFailed      Kind = errors.New("validation failed")
	DependencyUnsatisfied Kind = errors.New("dependency unsatisfied")
	CapabilityDenied      Kind = errors.New("capability denied")
	ResourceExceeded      Kind = errors.New("resource exceeded")
	HotSwapBusy           Kind = errors.New("hot-swap busy")
	Corruption            Kind = errors.New("invariant corruption")
)

// KernelError carries a taxonomy Kind plus call-site detail. Cause is
// optional and chained via Unwrap so both Kind and Cause are reachable
// through errors.Is / errors.As.
type KernelError struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *KernelError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *KernelError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// Is compares against another *KernelError (by Kind) or, via Unwrap, the
// bare Kind sentinel; either is acceptable to errors.Is callers.
func (e *KernelError) Is(target error) bool {
	var other *KernelError
	if errors.As(target, &other) {
		return errors.Is(e.Kind, other.Kind)
	}
	return errors.Is(e.Kind, target)
}

// New builds a KernelError for the given taxonomy member with a detail
// string describing the specific failing operation.
func New(kind Kind, detail string) *KernelError {
	return &KernelError{Kind: kind, Detail: detail}
}

// Wrap builds a KernelError chaining an underlying cause.
func Wrap(kind Kind, detail string, cause error) *KernelError {
	return &KernelError{Kind: kind, Detail: detail, Cause: cause}
}
