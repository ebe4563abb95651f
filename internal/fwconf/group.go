package fwconf

// Group is a reusable named rule list, expanded wherever a GROUP rule
// references it.
type Group struct {
	Rules   []*Rule
	Comment string
}

func (g *Group) parseEntry(line string) error {
	rule, err := ParseRule(line)
	if err != nil {
		return err
	}
	g.Rules = append(g.Rules, rule)
	return nil
}
