package nft

import (
	"encoding/json"
)

// Expression is a node in an nftables expression tree. Strings, numbers
// and booleans marshal as bare JSON scalars; composite nodes marshal as
// single-key objects.
type Expression interface {
	exprNode()
}

// Str is a bare string expression. Set and chain references are spelled
// "@name" by convention.
type Str string

func (Str) exprNode() {}

// Num is a bare numeric expression.
type Num int64

func (Num) exprNode() {}

// List is an untagged expression list (e.g. ct states).
type List []Expression

func (List) exprNode() {}

// Concat is the native concatenation expression.
type Concat []Expression

func (Concat) exprNode() {}

func (c Concat) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Concat []Expression `json:"concat"`
	}{c})
}

// SetLiteral is an anonymous set expression like { 80, 443 }.
type SetLiteral []Expression

func (SetLiteral) exprNode() {}

func (s SetLiteral) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Set []Expression `json:"set"`
	}{s})
}

// Range is an inclusive value range.
type Range struct {
	From Expression
	To   Expression
}

func (Range) exprNode() {}

func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Range [2]Expression `json:"range"`
	}{[2]Expression{r.From, r.To}})
}

// Prefix is an address with a prefix length.
type Prefix struct {
	Addr Expression `json:"addr"`
	Len  int        `json:"len"`
}

func (Prefix) exprNode() {}

func (p Prefix) MarshalJSON() ([]byte, error) {
	type prefix Prefix
	return json.Marshal(struct {
		Prefix prefix `json:"prefix"`
	}{prefix(p)})
}

// Payload is a named header field reference like "ip saddr".
type Payload struct {
	Protocol string `json:"protocol"`
	Field    string `json:"field"`
}

func (Payload) exprNode() {}

// PayloadField builds a payload expression.
func PayloadField(protocol, field string) Payload {
	return Payload{Protocol: protocol, Field: field}
}

func (p Payload) MarshalJSON() ([]byte, error) {
	type payload Payload
	return json.Marshal(struct {
		Payload payload `json:"payload"`
	}{payload(p)})
}

// Meta is a meta key reference like "iifname" or "l4proto".
type Meta struct {
	Key string `json:"key"`
}

func (Meta) exprNode() {}

func MetaKey(key string) Meta { return Meta{Key: key} }

func (m Meta) MarshalJSON() ([]byte, error) {
	type meta Meta
	return json.Marshal(struct {
		Meta meta `json:"meta"`
	}{meta(m)})
}

// Ct is a conntrack key reference, optionally per family.
type Ct struct {
	Key    string `json:"key"`
	Family string `json:"family,omitempty"`
}

func (Ct) exprNode() {}

func CtKey(key string) Ct { return Ct{Key: key} }

func (c Ct) MarshalJSON() ([]byte, error) {
	type ct Ct
	return json.Marshal(struct {
		Ct ct `json:"ct"`
	}{ct(c)})
}

// Elem wraps a set element with per-element configuration.
type Elem struct {
	Val     Expression `json:"val"`
	Timeout int64      `json:"timeout,omitempty"`
	Comment string     `json:"comment,omitempty"`
}

func (Elem) exprNode() {}

func (e Elem) MarshalJSON() ([]byte, error) {
	type elem Elem
	return json.Marshal(struct {
		Elem elem `json:"elem"`
	}{elem(e)})
}
