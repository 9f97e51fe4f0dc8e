package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseInit    Phase = "init"    // worker handshake and option validation
	PhaseShm     Phase = "shm"     // shared memory allocation
	PhaseS11n    Phase = "s11n"    // argument/result codec
	PhaseStorage Phase = "storage" // backend operations
	PhaseVFS     Phase = "vfs"     // synchronous side
	PhaseHost    Phase = "host"    // host module registration
	PhaseLoad    Phase = "load"    // engine module loading
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidData    Kind = "invalid_data"
	KindInvalidInput   Kind = "invalid_input"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindOverflow       Kind = "overflow"
	KindUnsupported    Kind = "unsupported"
	KindAllocation     Kind = "allocation"
	KindNotFound       Kind = "not_found"
	KindNotInitialized Kind = "not_initialized"
	KindClosed         Kind = "closed"
	KindTimeout        Kind = "timeout"
	KindIO             Kind = "io"
	KindTypeMismatch   Kind = "type_mismatch"
	KindNotEmpty       Kind = "not_empty"
	KindLocked         Kind = "locked"
	KindPermission     Kind = "permission"
	KindRegistration   Kind = "registration"
	KindInstantiation  Kind = "instantiation"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "/"))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err *Error
}

// New starts building an error
func New(phase Phase, kind Kind) *Builder {
	return &Builder{err: &Error{Phase: phase, Kind: kind}}
}

// Path sets the storage path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Op sets the operation name
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets a formatted detail message
func (b *Builder) Detail(format string, args ...any) *Builder {
	b.err.Detail = fmt.Sprintf(format, args...)
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return b.err
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidTag creates a codec error for an unknown type tag
func InvalidTag(tag byte, index int) *Error {
	return &Error{
		Phase:  PhaseS11n,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("invalid type tag %d for argument %d", tag, index),
		Value:  tag,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, offset, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("offset %d out of bounds (length %d)", offset, length),
		Value:  offset,
	}
}

// NotFound creates a not found error
func NotFound(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: what + " not found",
	}
}

// NotInitialized creates a not initialized error
func NotInitialized(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: what + " not initialized",
	}
}

// Closed creates an error for use after close
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: what + " is closed",
	}
}

// Unsupported creates an unsupported feature error
func Unsupported(phase Phase, feature string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: feature + " not supported",
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size int, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Cause:  cause,
	}
}

// IO creates a storage I/O error for an operation on path
func IO(op, path string, cause error) *Error {
	e := &Error{
		Phase: PhaseStorage,
		Kind:  KindIO,
		Op:    op,
		Cause: cause,
	}
	if path != "" {
		e.Path = strings.Split(strings.Trim(path, "/"), "/")
	}
	return e
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingOpsError is returned when the init message lacks IDs for required operations
type MissingOpsError struct {
	Ops []string
}

func (e *MissingOpsError) Error() string {
	if len(e.Ops) == 1 {
		return "missing operation ID: " + e.Ops[0]
	}
	return fmt.Sprintf("missing %d operation IDs: %s", len(e.Ops), strings.Join(e.Ops, ", "))
}

// Is matches any init-phase invalid input error so callers can test with errors.Is
func (e *MissingOpsError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Phase == PhaseInit && t.Kind == KindInvalidInput
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
