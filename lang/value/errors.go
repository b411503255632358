package value

import "fmt"

// ErrorKind enumerates the error taxonomy of spec.md §7. It is not the
// "kind" of a Value — it tags *Error, the single error type the VM raises.
type ErrorKind uint8

const (
	RuntimeError ErrorKind = iota
	CompileError
	UndefinedIdentifier
	TypeError
	IndexError
	KeyError
	LimitExceededError
	TooManyArguments
)

func (k ErrorKind) String() string {
	switch k {
	case RuntimeError:
		return "RuntimeError"
	case CompileError:
		return "CompileError"
	case UndefinedIdentifier:
		return "UndefinedIdentifier"
	case TypeError:
		return "TypeError"
	case IndexError:
		return "IndexError"
	case KeyError:
		return "KeyError"
	case LimitExceededError:
		return "LimitExceededError"
	case TooManyArguments:
		return "TooManyArguments"
	default:
		return "Error"
	}
}

// SourceLocation names the call-frame and source line an error occurred in,
// per spec.md §7's error contract.
type SourceLocation struct {
	ContextName string
	LineNum     int
}

// Error is the single error type raised by the parser and VM. Its Kind
// selects which entry of the spec's error taxonomy it represents.
type Error struct {
	Kind     ErrorKind
	Message  string
	Location *SourceLocation
	Cause    error
}

func (e *Error) Error() string {
	if e.Location != nil {
		return fmt.Sprintf("%s: %s:%d: %s", e.Kind, e.Location.ContextName, e.Location.LineNum, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an *Error of the given kind with a formatted message and
// no location; the Machine fills in a location later if one is missing
// (spec.md §4.5 "If the evaluator raises an error without a location...").
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithLocation returns a copy of e with its Location set, if it does not
// already have one.
func WithLocation(err error, loc SourceLocation) error {
	e, ok := err.(*Error)
	if !ok {
		return err
	}
	if e.Location != nil {
		return e
	}
	cp := *e
	cp.Location = &loc
	return &cp
}
