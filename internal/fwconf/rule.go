package fwconf

import (
	"fmt"
	"strings"
)

// Direction is the traffic direction a rule applies to.
type Direction int

const (
	DirectionIn Direction = iota
	DirectionOut
	DirectionForward
)

// ParseDirection resolves IN, OUT or FORWARD (case-insensitive).
func ParseDirection(s string) (Direction, error) {
	switch {
	case strings.EqualFold(s, "IN"):
		return DirectionIn, nil
	case strings.EqualFold(s, "OUT"):
		return DirectionOut, nil
	case strings.EqualFold(s, "FORWARD"):
		return DirectionForward, nil
	}
	return 0, fmt.Errorf("%w: direction %q, expected IN, OUT or FORWARD", ErrBadValue, s)
}

func (d Direction) String() string {
	switch d {
	case DirectionOut:
		return "out"
	case DirectionForward:
		return "forward"
	}
	return "in"
}

// Verdict is a rule action or default policy.
type Verdict int

const (
	VerdictDrop Verdict = iota
	VerdictAccept
	VerdictReject
)

// ParseVerdict resolves ACCEPT, REJECT or DROP (case-insensitive).
func ParseVerdict(s string) (Verdict, error) {
	switch {
	case strings.EqualFold(s, "ACCEPT"):
		return VerdictAccept, nil
	case strings.EqualFold(s, "REJECT"):
		return VerdictReject, nil
	case strings.EqualFold(s, "DROP"):
		return VerdictDrop, nil
	}
	return 0, fmt.Errorf("%w: %q, expected ACCEPT, REJECT or DROP", ErrInvalidPolicy, s)
}

func (v Verdict) String() string {
	switch v {
	case VerdictAccept:
		return "ACCEPT"
	case VerdictReject:
		return "REJECT"
	}
	return "DROP"
}

// Rule is one line of a [RULES] or [GROUP] section: either a match rule
// or a security-group expansion. Disabled rules are kept in the model so
// indices stay stable for provenance, but the compiler skips them.
type Rule struct {
	Disabled bool
	Comment  string

	// exactly one of the two is set
	Match *RuleMatch
	Group *RuleGroup
}

// Iface returns the interface restriction of either rule kind.
func (r *Rule) Iface() string {
	if r.Group != nil {
		return r.Group.Iface
	}
	if r.Match != nil {
		return r.Match.Iface
	}
	return ""
}

// ParseRule parses a full rule line including the disable marker and
// trailing comment.
func ParseRule(input string) (*Rule, error) {
	if strings.ContainsAny(input, "\n\r") {
		return nil, fmt.Errorf("%w: rule must not contain newlines", ErrBadValue)
	}

	line := input
	var comment string
	if before, after, found := cutLastComment(line); found {
		line, comment = before, after
	}
	line = strings.TrimSpace(line)

	rule := &Rule{Comment: comment}
	if rest, ok := strings.CutPrefix(line, "|"); ok {
		rule.Disabled = true
		line = strings.TrimLeft(rest, " \t")
	}

	if strings.HasPrefix(line, "GROUP") {
		group, err := parseRuleGroup(line)
		if err != nil {
			return nil, err
		}
		rule.Group = group
		return rule, nil
	}

	match, err := parseRuleMatch(line)
	if err != nil {
		return nil, err
	}
	rule.Match = match

	return rule, nil
}

func cutLastComment(line string) (string, string, bool) {
	idx := strings.LastIndex(line, "#")
	if idx == -1 {
		return line, "", false
	}

	comment := strings.TrimSpace(line[idx+1:])
	if comment == "" {
		return line, "", false
	}

	return strings.TrimSpace(line[:idx]), comment, true
}

// RuleGroup references a security group, optionally bound to an
// interface.
type RuleGroup struct {
	Name  string
	Iface string
}

func parseRuleGroup(line string) (*RuleGroup, error) {
	keyword, rest, ok := matchName(line)
	if !ok || !strings.EqualFold(keyword, "GROUP") {
		return nil, fmt.Errorf("%w: expected GROUP keyword", ErrBadValue)
	}

	name, rest, ok := matchName(strings.TrimSpace(rest))
	if !ok {
		return nil, fmt.Errorf("%w: security group name", ErrMissingRequired)
	}

	if !validName(name) {
		return nil, fmt.Errorf("%w: security group name %q", ErrNameSyntax, name)
	}

	options, err := parseRuleOptions(strings.TrimLeft(rest, " \t"))
	if err != nil {
		return nil, err
	}

	if options.proto != "" || options.dport != "" || options.sport != "" ||
		options.dest != "" || options.source != "" || options.log != "" ||
		options.icmpType != "" {
		return nil, fmt.Errorf("%w: only the interface option is permitted for group rules", ErrBadValue)
	}

	return &RuleGroup{Name: name, Iface: options.iface}, nil
}
