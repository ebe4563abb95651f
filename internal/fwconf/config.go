package fwconf

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// RawConfig is the section-level parse result shared by all scopes:
// options as raw strings plus the typed rule, alias, ipset and group
// collections. Scope-specific option decoding happens on top of it.
type RawConfig struct {
	Options map[string]string
	Rules   []*Rule
	Aliases map[string]*Alias
	Ipsets  map[string]*Ipset
	Groups  map[string]*Group
}

// ParserConfig adjusts scope-specific parsing behavior.
type ParserConfig struct {
	// GuestIfaceNames requires rule interfaces of the form "netN".
	GuestIfaceNames bool
	// IpsetScope is the scope assigned to [IPSET] sections; parsing an
	// ipset section without it set is an error.
	IpsetScope *Scope
}

type section int

const (
	secNone section = iota
	secOptions
	secAliases
	secRules
	secIpset
	secGroup
)

// ParseRawConfig reads one legacy firewall config file. Comments start
// with '#', blank lines are skipped, section headers are
// case-insensitive.
func ParseRawConfig(input io.Reader, pc ParserConfig) (*RawConfig, error) {
	cfg := &RawConfig{
		Options: map[string]string{},
		Aliases: map[string]*Alias{},
		Ipsets:  map[string]*Ipset{},
		Groups:  map[string]*Group{},
	}

	current := secNone
	var currentIpset *Ipset
	var currentGroup *Group

	scanner := bufio.NewScanner(input)
	lineno := 0

	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fail := func(err error) error {
			return fmt.Errorf("line %d: %w", lineno, err)
		}

		switch {
		case strings.EqualFold(line, "[OPTIONS]"):
			current = secOptions
		case strings.EqualFold(line, "[ALIASES]"):
			current = secAliases
		case strings.EqualFold(line, "[RULES]"):
			current = secRules
		case len(line) > 6 && strings.EqualFold(line[:6], "[IPSET"):
			name, comment, err := parseSectionTail("ipset", line[6:])
			if err != nil {
				return nil, fail(err)
			}

			if pc.IpsetScope == nil {
				return nil, fail(fmt.Errorf("%w: [IPSET] section not allowed in this scope", ErrBadValue))
			}

			if _, exists := cfg.Ipsets[name]; exists {
				return nil, fail(duplicateName("ipset", name))
			}

			currentIpset = NewIpset(NewIpsetName(*pc.IpsetScope, name))
			currentIpset.Comment = comment
			cfg.Ipsets[name] = currentIpset
			current = secIpset
		case len(line) > 6 && strings.EqualFold(line[:6], "[GROUP"):
			name, comment, err := parseSectionTail("group", line[6:])
			if err != nil {
				return nil, fail(err)
			}

			if _, exists := cfg.Groups[name]; exists {
				return nil, fail(duplicateName("group", name))
			}

			currentGroup = &Group{Comment: comment}
			cfg.Groups[name] = currentGroup
			current = secGroup
		case strings.HasPrefix(line, "["):
			return nil, fail(fmt.Errorf("%w: invalid section %q", ErrBadValue, line))
		default:
			switch current {
			case secNone:
				return nil, fail(fmt.Errorf("%w: config line outside any section: %q", ErrBadValue, line))
			case secOptions:
				key, value, ok := splitKeyValue(line)
				if !ok {
					return nil, fail(fmt.Errorf("%w: expected 'key: value', found %q", ErrBadValue, line))
				}
				if _, exists := cfg.Options[key]; exists {
					return nil, fail(duplicateName("option", key))
				}
				cfg.Options[key] = value
			case secAliases:
				alias, err := ParseAlias(line)
				if err != nil {
					return nil, fail(err)
				}
				if _, exists := cfg.Aliases[alias.Name]; exists {
					return nil, fail(duplicateName("alias", alias.Name))
				}
				aliasCopy := alias
				cfg.Aliases[alias.Name] = &aliasCopy
			case secRules:
				rule, err := ParseRule(line)
				if err != nil {
					return nil, fail(err)
				}
				if pc.GuestIfaceNames {
					if err := checkGuestIface(rule.Iface()); err != nil {
						return nil, fail(err)
					}
				}
				cfg.Rules = append(cfg.Rules, rule)
			case secIpset:
				if err := currentIpset.parseEntry(line); err != nil {
					return nil, fail(err)
				}
			case secGroup:
				if err := currentGroup.parseEntry(line); err != nil {
					return nil, fail(err)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return cfg, nil
}

// checkGuestIface requires guest rule interfaces to use the "netN" key
// form so they can be mapped to the tap/veth device of the NIC.
func checkGuestIface(iface string) error {
	if iface == "" {
		return nil
	}

	rest, ok := strings.CutPrefix(iface, "net")
	if !ok {
		return fmt.Errorf("%w: interface must be of the form \"net<number>\"", ErrBadValue)
	}

	digits, tail, ok := matchDigits(rest)
	if !ok || tail != "" || len(digits) > 2 {
		return fmt.Errorf("%w: interface must be of the form \"net<number>\"", ErrBadValue)
	}

	return nil
}

// optionDecoder walks a raw option map, recording the first error and
// flagging keys no decoder claimed.
type optionDecoder struct {
	options map[string]string
	used    map[string]bool
	err     error
}

func newOptionDecoder(options map[string]string) *optionDecoder {
	return &optionDecoder{options: options, used: map[string]bool{}}
}

func (d *optionDecoder) lookup(key string) (string, bool) {
	value, ok := d.options[key]
	if ok {
		d.used[key] = true
	}
	return value, ok
}

func (d *optionDecoder) boolOpt(key string, dst **bool) {
	value, ok := d.lookup(key)
	if !ok || d.err != nil {
		return
	}

	parsed, err := parseBool(value)
	if err != nil {
		d.err = badValue(key, err)
		return
	}
	*dst = &parsed
}

func (d *optionDecoder) intOpt(key string, dst **int64) {
	value, ok := d.lookup(key)
	if !ok || d.err != nil {
		return
	}

	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		d.err = badValue(key, err)
		return
	}
	*dst = &parsed
}

func (d *optionDecoder) logLevelOpt(key string, dst **LogLevel) {
	value, ok := d.lookup(key)
	if !ok || d.err != nil {
		return
	}

	parsed, err := ParseLogLevel(value)
	if err != nil {
		d.err = err
		return
	}
	*dst = &parsed
}

func (d *optionDecoder) verdictOpt(key string, dst **Verdict) {
	value, ok := d.lookup(key)
	if !ok || d.err != nil {
		return
	}

	parsed, err := ParseVerdict(value)
	if err != nil {
		d.err = err
		return
	}
	*dst = &parsed
}

func (d *optionDecoder) ratelimitOpt(key string, dst **LogRateLimit) {
	value, ok := d.lookup(key)
	if !ok || d.err != nil {
		return
	}

	parsed, err := ParseLogRateLimit(value)
	if err != nil {
		d.err = err
		return
	}
	*dst = &parsed
}

func (d *optionDecoder) stringListOpt(key string, dst *[]string) {
	value, ok := d.lookup(key)
	if !ok || d.err != nil {
		return
	}

	for _, element := range strings.Split(value, ",") {
		element = strings.TrimSpace(element)
		if element != "" {
			*dst = append(*dst, element)
		}
	}
}

// finish reports any decode error, then any option key nobody claimed.
func (d *optionDecoder) finish() error {
	if d.err != nil {
		return d.err
	}

	for key := range d.options {
		if !d.used[key] {
			return fmt.Errorf("%w: %q", ErrUnknownOption, key)
		}
	}

	return nil
}
