package fwconf

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Callers match them with errors.Is; the wrapped
// message carries the offending value and, where available, provenance.
var (
	ErrMalformedAddress = errors.New("malformed address")
	ErrFamilyMismatch   = errors.New("address family mismatch")
	ErrEmptyRange       = errors.New("empty range")
	ErrUnknownService   = errors.New("unknown service name")
	ErrUnknownOption    = errors.New("unknown option")
	ErrBadValue         = errors.New("bad option value")
	ErrMissingRequired  = errors.New("missing required value")
	ErrUnresolvedAlias  = errors.New("unresolved alias")
	ErrUnresolvedSetRef = errors.New("unresolved ipset reference")
	ErrUnknownGroup     = errors.New("unknown security group")
	ErrUnknownMacro     = errors.New("unknown macro")
	ErrMacroFamilyEmpty = errors.New("macro has no fragment compatible with rule family")
	ErrDuplicateName    = errors.New("duplicate name")
	ErrNameSyntax       = errors.New("invalid name")
	ErrInvalidPolicy    = errors.New("invalid policy")
)

func badValue(name string, err error) error {
	return fmt.Errorf("%w for %q: %v", ErrBadValue, name, err)
}

func duplicateName(scope, name string) error {
	return fmt.Errorf("%w: %s %q", ErrDuplicateName, scope, name)
}
