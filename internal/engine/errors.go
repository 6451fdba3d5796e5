package engine

import (
	"errors"
	"strings"

	"github.com/roach88/tabula/internal/errs"
)

// notSupported builds the error returned for plan shapes the compiler or
// executor cannot handle.
func notSupported(format string, args ...any) *errs.Error {
	return errs.New(errs.NotSupported, format, args...)
}

// Sequence errors raised by element terminals.
func errNoElements(term string) *errs.Error {
	return errs.New(errs.Sequence, "%s: sequence contains no elements", term)
}

func errManyElements(term string) *errs.Error {
	return errs.New(errs.Sequence, "%s: sequence contains more than one element", term)
}

// IsNoElements reports whether err is the Sequence failure raised for an
// empty input.
func IsNoElements(err error) bool {
	var e *errs.Error
	if !errors.As(err, &e) || e.Code != errs.Sequence {
		return false
	}
	return strings.HasSuffix(e.Message, "no elements")
}

// IsMoreThanOneElement reports whether err is the Sequence failure raised
// by Single or SingleOrDefault on more than one element.
func IsMoreThanOneElement(err error) bool {
	var e *errs.Error
	if !errors.As(err, &e) || e.Code != errs.Sequence {
		return false
	}
	return strings.HasSuffix(e.Message, "more than one element")
}
