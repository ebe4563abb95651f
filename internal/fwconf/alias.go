package fwconf

import (
	"fmt"
	"strings"
)

// Scope distinguishes datacenter-wide entities from per-guest ones.
// References always carry an explicit "dc/" or "guest/" prefix; names
// without one are rejected.
type Scope int

const (
	ScopeDatacenter Scope = iota
	ScopeGuest
)

func (s Scope) String() string {
	if s == ScopeGuest {
		return "guest"
	}
	return "dc"
}

func parseScope(s string) (Scope, error) {
	switch s {
	case "dc":
		return ScopeDatacenter, nil
	case "guest":
		return ScopeGuest, nil
	}
	return 0, fmt.Errorf("%w: invalid scope %q", ErrBadValue, s)
}

// AliasName is a scoped alias reference like "dc/management".
type AliasName struct {
	scope Scope
	name  string
}

func NewAliasName(scope Scope, name string) AliasName {
	return AliasName{scope: scope, name: name}
}

// ParseAliasName parses "dc/name" or "guest/name".
func ParseAliasName(s string) (AliasName, error) {
	prefix, name, found := strings.Cut(s, "/")
	if !found || name == "" {
		return AliasName{}, fmt.Errorf("%w: alias reference %q", ErrNameSyntax, s)
	}

	scope, err := parseScope(prefix)
	if err != nil {
		return AliasName{}, fmt.Errorf("%w: alias reference %q", ErrNameSyntax, s)
	}

	if !validName(name) {
		return AliasName{}, fmt.Errorf("%w: alias name %q", ErrNameSyntax, name)
	}

	return AliasName{scope: scope, name: name}, nil
}

func (n AliasName) Scope() Scope { return n.scope }
func (n AliasName) Name() string { return n.name }

func (n AliasName) String() string {
	return fmt.Sprintf("%s/%s", n.scope, n.name)
}

// Alias is a named address.
type Alias struct {
	Name    string
	Address Cidr
	Comment string
}

// ParseAlias parses an [ALIASES] section line: "name address [# comment]".
func ParseAlias(line string) (Alias, error) {
	name, rest, ok := matchName(strings.TrimSpace(line))
	if !ok {
		return Alias{}, fmt.Errorf("%w: expected an alias name", ErrNameSyntax)
	}

	if !validName(name) {
		return Alias{}, fmt.Errorf("%w: alias name %q", ErrNameSyntax, name)
	}

	value, rest, ok := matchNonWhitespace(strings.TrimLeft(rest, " \t"))
	if !ok {
		return Alias{}, fmt.Errorf("%w: address for alias %q", ErrMissingRequired, name)
	}

	address, err := ParseCidr(value)
	if err != nil {
		return Alias{}, err
	}

	var comment string
	rest = strings.TrimSpace(rest)
	if c, ok := strings.CutPrefix(rest, "#"); ok {
		comment = strings.TrimSpace(c)
	} else if rest != "" {
		return Alias{}, fmt.Errorf("%w: trailing characters in alias %q: %q", ErrBadValue, name, rest)
	}

	return Alias{Name: name, Address: address, Comment: comment}, nil
}
