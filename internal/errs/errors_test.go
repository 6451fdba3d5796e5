package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stringer string

func (s stringer) String() string { return string(s) }

func TestErrorMessage(t *testing.T) {
	err := New(DuplicateKey, "key already present").WithEntity("Product").WithKey(stringer("[1]"))
	assert.Equal(t, "DUPLICATE_KEY: key already present (entity=Product, key=[1])", err.Error())
}

func TestErrorMessageWithStateAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := New(TransactionState, "cannot commit").WithState(stringer("RolledBack")).Wrap(cause)
	assert.Equal(t, "TRANSACTION_STATE: cannot commit (state=RolledBack): boom", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestCodeOfWrapped(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(NotFound, "missing"))
	assert.Equal(t, NotFound, CodeOf(err))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsDuplicateKey(err))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
	assert.False(t, Is(nil, NotFound))
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsNotSupported(New(NotSupported, "x")))
	assert.True(t, IsTransactionState(New(TransactionState, "x")))
	assert.True(t, IsDuplicateKey(New(DuplicateKey, "x")))
}

func TestKnown(t *testing.T) {
	assert.True(t, Known(NotFound))
	assert.True(t, Known(Code("SEQUENCE")))
	assert.False(t, Known(Code("NotFound")))
	assert.False(t, Known(""))
}
