package peptide

import (
	"fmt"
	"strings"
)

// Pattern describes a sequence with per-position alternatives. Each element
// holds the allowed amino acids for that position, in the order they were
// given. A position with an empty alternative set makes the pattern width
// zero.
type Pattern []string

// ParsePattern parses a bracket-pattern string such as "A[CD]E[FY]GH".
// A bare character is a literal; "[XYZ]" is a one-of set. No nesting,
// quantifiers, or escapes.
func ParsePattern(s string) (Pattern, error) {
	var p Pattern

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, &ValidationError{
					Position: i + 1,
					Message:  "unclosed bracket in pattern " + s,
				}
			}
			alts := strings.ToUpper(s[i+1 : i+end])
			for j := 0; j < len(alts); j++ {
				if !IsStandardAA(alts[j]) {
					return nil, &ValidationError{
						Position: i + 1 + j + 1,
						Message:  fmt.Sprintf("invalid amino acid %q in pattern %s", alts[j], s),
					}
				}
			}
			p = append(p, alts)
			i += end + 1
		case c == ']':
			return nil, &ValidationError{
				Position: i + 1,
				Message:  "unmatched closing bracket in pattern " + s,
			}
		default:
			up := upperAA(c)
			if !IsStandardAA(up) {
				return nil, &ValidationError{
					Position: i + 1,
					Message:  fmt.Sprintf("invalid amino acid %q in pattern %s", c, s),
				}
			}
			p = append(p, string(up))
			i++
		}
	}

	return p, nil
}

// PatternFromSets builds a Pattern from explicit per-position alternative
// sets. Every character must be a standard amino acid.
func PatternFromSets(sets []string) (Pattern, error) {
	p := make(Pattern, 0, len(sets))
	for i, alts := range sets {
		up := strings.ToUpper(alts)
		for j := 0; j < len(up); j++ {
			if !IsStandardAA(up[j]) {
				return nil, &ValidationError{
					Position: i + 1,
					Message:  fmt.Sprintf("invalid amino acid %q at position %d", alts[j], i+1),
				}
			}
		}
		p = append(p, up)
	}
	return p, nil
}

// Len returns the number of positions, i.e. the length of each expansion.
func (p Pattern) Len() int {
	return len(p)
}

// Width returns the number of distinct full-length expansions: the product
// of per-position alternative counts. A position with no alternatives makes
// the width zero.
func (p Pattern) Width() int {
	w := 1
	for _, alts := range p {
		w *= len(alts)
	}
	return w
}

func upperAA(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}
