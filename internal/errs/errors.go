// Package errs defines the typed failures shared by the storage engine,
// the plan compiler and the unit of work.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorizes errors.
type Code string

const (
	// DuplicateKey indicates Add on a key that is already present.
	DuplicateKey Code = "DUPLICATE_KEY"

	// NotFound indicates Update/Remove on an absent key.
	NotFound Code = "NOT_FOUND"

	// NullArgument indicates a nil entity or key input.
	NullArgument Code = "NULL_ARGUMENT"

	// NoPrimaryKey indicates an entity type with no derivable key.
	NoPrimaryKey Code = "NO_PRIMARY_KEY"

	// NullPrimaryKeyValue indicates a key field holding null.
	NullPrimaryKeyValue Code = "NULL_PRIMARY_KEY_VALUE"

	// TransactionState indicates a transaction operation attempted in the
	// wrong state.
	TransactionState Code = "TRANSACTION_STATE"

	// NotSupported indicates a plan shape the compiler cannot handle.
	NotSupported Code = "NOT_SUPPORTED"

	// Sequence indicates a terminal operator applied to a sequence of the
	// wrong cardinality (First on empty, Single on many, ...).
	Sequence Code = "SEQUENCE"

	// UnknownEntity indicates an entity type absent from the model.
	UnknownEntity Code = "UNKNOWN_ENTITY"

	// InvalidSchema indicates a schema descriptor that cannot be built.
	InvalidSchema Code = "INVALID_SCHEMA"
)

var codes = []Code{
	DuplicateKey, NotFound, NullArgument, NoPrimaryKey, NullPrimaryKeyValue,
	TransactionState, NotSupported, Sequence, UnknownEntity, InvalidSchema,
}

// Known reports whether c is one of the codes above.
func Known(c Code) bool {
	for _, k := range codes {
		if k == c {
			return true
		}
	}
	return false
}

// Error is the structured failure type. Fields other than Code and Message
// are optional context.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Entity names the entity type involved, if any.
	Entity string

	// Key renders the row key involved, if any.
	Key string

	// State is the offending state for TransactionState errors.
	State string

	// Err is an optional underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)

	var ctx []string
	if e.Entity != "" {
		ctx = append(ctx, "entity="+e.Entity)
	}
	if e.Key != "" {
		ctx = append(ctx, "key="+e.Key)
	}
	if e.State != "" {
		ctx = append(ctx, "state="+e.State)
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithEntity sets the entity name and returns e for chaining.
func (e *Error) WithEntity(entity string) *Error {
	e.Entity = entity
	return e
}

// WithKey sets the rendered key and returns e for chaining.
func (e *Error) WithKey(key fmt.Stringer) *Error {
	e.Key = key.String()
	return e
}

// WithState sets the offending state and returns e for chaining.
func (e *Error) WithState(state fmt.Stringer) *Error {
	e.State = state.String()
	return e
}

// Wrap attaches a cause and returns e for chaining.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// CodeOf returns the Code of the first *Error in err's chain, or "".
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsDuplicateKey returns true if err is a DuplicateKey failure.
func IsDuplicateKey(err error) bool { return Is(err, DuplicateKey) }

// IsNotFound returns true if err is a NotFound failure.
func IsNotFound(err error) bool { return Is(err, NotFound) }

// IsNotSupported returns true if err is a NotSupported failure.
func IsNotSupported(err error) bool { return Is(err, NotSupported) }

// IsTransactionState returns true if err is a TransactionState failure.
func IsTransactionState(err error) bool { return Is(err, TransactionState) }
