package token

import "strings"

// Canonicalizer maps alias spellings to a single canonical token.
// Lookups are case-insensitive; tokens missing from the table pass through unchanged.
type Canonicalizer struct {
	table map[string]string // lowercased alias -> canonical
}

// DefaultAliases returns the built-in alias table, keyed by canonical form.
func DefaultAliases() map[string][]string {
	return map[string][]string{
		"Lord_Voldemort": {"voldemort", "you-know-who"},
	}
}

// NewCanonicalizer builds a canonicalizer from canonical -> aliases pairs.
// When two canonical forms claim the same alias the lexically smaller canonical wins,
// so construction is deterministic regardless of map order.
func NewCanonicalizer(aliases map[string][]string) *Canonicalizer {
	table := make(map[string]string)
	for canonical, spellings := range aliases {
		for _, alias := range spellings {
			key := strings.ToLower(alias)
			if key == "" {
				continue
			}
			if prev, ok := table[key]; ok && prev < canonical {
				continue
			}
			table[key] = canonical
		}
	}
	return &Canonicalizer{table: table}
}

// Lookup returns the canonical form of tok, or tok itself when it is not an alias.
func (c *Canonicalizer) Lookup(tok string) string {
	if canonical, ok := c.table[strings.ToLower(tok)]; ok {
		return canonical
	}
	return tok
}

// Canonicalize rewrites every alias in tokens. The result has the same length and
// order as the input.
func (c *Canonicalizer) Canonicalize(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = c.Lookup(tok)
	}
	return out
}

// Len reports the number of alias spellings known.
func (c *Canonicalizer) Len() int {
	return len(c.table)
}
