package nft

import (
	"encoding/json"
)

// Commands is the full document handed to the applier.
type Commands struct {
	Nftables []Command `json:"nftables"`
}

func NewCommands(commands ...Command) *Commands {
	return &Commands{Nftables: commands}
}

// Push appends a single command.
func (c *Commands) Push(cmd Command) {
	c.Nftables = append(c.Nftables, cmd)
}

// Append appends several commands.
func (c *Commands) Append(cmds ...Command) {
	c.Nftables = append(c.Nftables, cmds...)
}

// Len returns the number of commands.
func (c *Commands) Len() int { return len(c.Nftables) }

// Marshal serializes the whole document.
func (c *Commands) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Command is one entry of the nftables array. Exactly one field is set.
type Command struct {
	Add    *objectPayload `json:"add,omitempty"`
	Flush  *objectPayload `json:"flush,omitempty"`
	Delete *objectPayload `json:"delete,omitempty"`
}

// objectPayload carries the object of an add/flush/delete command.
// Exactly one field is set.
type objectPayload struct {
	Table    *tableSpec    `json:"table,omitempty"`
	Chain    *chainSpec    `json:"chain,omitempty"`
	Rule     *ruleSpec     `json:"rule,omitempty"`
	Set      *setSpec      `json:"set,omitempty"`
	Map      *setSpec      `json:"map,omitempty"`
	Element  *elementSpec  `json:"element,omitempty"`
	CtHelper *ctHelperSpec `json:"ct helper,omitempty"`
}

type tableSpec struct {
	Family TableFamily `json:"family"`
	Name   string      `json:"name"`
}

type chainSpec struct {
	Family TableFamily `json:"family"`
	Table  string      `json:"table"`
	Name   string      `json:"name"`

	Type     string `json:"type,omitempty"`
	Hook     string `json:"hook,omitempty"`
	Priority *int   `json:"prio,omitempty"`
	Policy   string `json:"policy,omitempty"`
}

type ruleSpec struct {
	Family  TableFamily `json:"family"`
	Table   string      `json:"table"`
	Chain   string      `json:"chain"`
	Expr    []Statement `json:"expr"`
	Comment string      `json:"comment,omitempty"`
}

type setSpec struct {
	Family TableFamily `json:"family"`
	Table  string      `json:"table"`
	Name   string      `json:"name"`

	Type      any      `json:"type,omitempty"`
	Map       string   `json:"map,omitempty"`
	Flags     []string `json:"flags,omitempty"`
	Timeout   int64    `json:"timeout,omitempty"`
	AutoMerge bool     `json:"auto-merge,omitempty"`
}

type elementSpec struct {
	Family TableFamily  `json:"family"`
	Table  string       `json:"table"`
	Name   string       `json:"name"`
	Elem   []Expression `json:"elem"`
}

type ctHelperSpec struct {
	Family   TableFamily `json:"family"`
	Table    string      `json:"table"`
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Protocol string      `json:"protocol"`
	L3Proto  string      `json:"l3proto,omitempty"`
}

func tableOf(t TablePart) *tableSpec {
	return &tableSpec{Family: t.Family, Name: t.Name}
}

// AddTable creates (or keeps) a table.
func AddTable(table TablePart) Command {
	return Command{Add: &objectPayload{Table: tableOf(table)}}
}

// FlushTable removes every rule from every chain of the table.
func FlushTable(table TablePart) Command {
	return Command{Flush: &objectPayload{Table: tableOf(table)}}
}

// DeleteTable removes the table and everything in it.
func DeleteTable(table TablePart) Command {
	return Command{Delete: &objectPayload{Table: tableOf(table)}}
}

func chainOf(chain ChainPart) *chainSpec {
	return &chainSpec{
		Family: chain.Table.Family,
		Table:  chain.Table.Name,
		Name:   chain.Name,
	}
}

// AddChain creates a regular chain.
func AddChain(chain ChainPart) Command {
	return Command{Add: &objectPayload{Chain: chainOf(chain)}}
}

// AddBaseChain creates a chain bound to a hook.
func AddBaseChain(chain ChainPart, base BaseChain) Command {
	spec := chainOf(chain)
	spec.Type = base.Type
	spec.Hook = base.Hook
	prio := base.Priority
	spec.Priority = &prio
	spec.Policy = base.Policy
	return Command{Add: &objectPayload{Chain: spec}}
}

// FlushChain removes all rules from a chain.
func FlushChain(chain ChainPart) Command {
	return Command{Flush: &objectPayload{Chain: chainOf(chain)}}
}

// DeleteChain removes a chain.
func DeleteChain(chain ChainPart) Command {
	return Command{Delete: &objectPayload{Chain: chainOf(chain)}}
}

// Rule is an nftables rule under construction.
type Rule struct {
	Chain   ChainPart
	Expr    []Statement
	Comment string
}

// NewRule builds a rule from its statements.
func NewRule(chain ChainPart, statements ...Statement) *Rule {
	return &Rule{Chain: chain, Expr: statements}
}

// Push appends a statement.
func (r *Rule) Push(statement Statement) {
	r.Expr = append(r.Expr, statement)
}

// AddRule emits the rule.
func AddRule(rule *Rule) Command {
	return Command{Add: &objectPayload{Rule: &ruleSpec{
		Family:  rule.Chain.Table.Family,
		Table:   rule.Chain.Table.Name,
		Chain:   rule.Chain.Name,
		Expr:    rule.Expr,
		Comment: rule.Comment,
	}}}
}

func setOf(cfg *SetConfig) *setSpec {
	spec := &setSpec{
		Family:    cfg.Name.Table.Family,
		Table:     cfg.Name.Table.Name,
		Name:      cfg.Name.Name,
		Map:       cfg.MapType,
		Flags:     cfg.Flags,
		Timeout:   cfg.Timeout,
		AutoMerge: cfg.AutoMerge,
	}

	// single-type keys stay scalar, concatenated keys become an array
	if len(cfg.KeyType) == 1 {
		spec.Type = cfg.KeyType[0]
	} else if len(cfg.KeyType) > 1 {
		spec.Type = cfg.KeyType
	}

	return spec
}

// AddSet creates a set.
func AddSet(cfg *SetConfig) Command {
	return Command{Add: &objectPayload{Set: setOf(cfg)}}
}

// AddMap creates a map; cfg.MapType names the value type.
func AddMap(cfg *SetConfig) Command {
	return Command{Add: &objectPayload{Map: setOf(cfg)}}
}

func setNameOf(name SetName) *setSpec {
	return &setSpec{
		Family: name.Table.Family,
		Table:  name.Table.Name,
		Name:   name.Name,
	}
}

// FlushSet removes all elements from a set.
func FlushSet(name SetName) Command {
	return Command{Flush: &objectPayload{Set: setNameOf(name)}}
}

// FlushMap removes all elements from a map.
func FlushMap(name SetName) Command {
	return Command{Flush: &objectPayload{Map: setNameOf(name)}}
}

// DeleteSet removes a set.
func DeleteSet(name SetName) Command {
	return Command{Delete: &objectPayload{Set: setNameOf(name)}}
}

// AddSetElements adds elements to a set.
func AddSetElements(name SetName, elements []Expression) Command {
	return Command{Add: &objectPayload{Element: &elementSpec{
		Family: name.Table.Family,
		Table:  name.Table.Name,
		Name:   name.Name,
		Elem:   elements,
	}}}
}

// MapElement is one key/value pair of a map.
type MapElement struct {
	Key   Expression
	Value Expression
}

func (e MapElement) exprNode() {}

func (e MapElement) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]Expression{e.Key, e.Value})
}

// AddMapElements adds key/value pairs to a map.
func AddMapElements(name SetName, elements []MapElement) Command {
	exprs := make([]Expression, len(elements))
	for i, element := range elements {
		exprs[i] = element
	}

	return Command{Add: &objectPayload{Element: &elementSpec{
		Family: name.Table.Family,
		Table:  name.Table.Name,
		Name:   name.Name,
		Elem:   exprs,
	}}}
}

// AddCtHelper creates a ct helper object.
func AddCtHelper(cfg CtHelperConfig) Command {
	return Command{Add: &objectPayload{CtHelper: &ctHelperSpec{
		Family:   cfg.Table.Family,
		Table:    cfg.Table.Name,
		Name:     cfg.Name,
		Type:     cfg.Type,
		Protocol: cfg.Protocol,
		L3Proto:  cfg.L3Proto,
	}}}
}
