// Package peptide provides peptide and allele value types, sequence
// validation, and pattern-driven variant generation.
package peptide

import "strings"

// Alphabet is the set of standard amino acid one-letter codes.
const Alphabet = "ACDEFGHIKLMNPQRSTVWY"

// IsStandardAA returns true if c is a standard amino acid code.
func IsStandardAA(c byte) bool {
	return strings.IndexByte(Alphabet, c) >= 0
}

// Validate checks that seq contains only standard amino acids.
// The sequence is expected to already be upper case.
func Validate(seq string) error {
	if seq == "" {
		return &ValidationError{Message: "empty peptide"}
	}
	for i := 0; i < len(seq); i++ {
		if !IsStandardAA(seq[i]) {
			return &ValidationError{
				Position: i + 1,
				Message:  "invalid amino acid " + string(seq[i]) + " in peptide " + seq,
			}
		}
	}
	return nil
}

// ValidateLength checks the alphabet and that seq has exactly length residues.
func ValidateLength(seq string, length int) error {
	if err := Validate(seq); err != nil {
		return err
	}
	if len(seq) != length {
		return &ValidationError{
			Message: "peptide " + seq + " does not match the declared analysis length",
		}
	}
	return nil
}

// NormalizeAllele upper-cases an allele identifier and trims whitespace.
// The canonical form keeps separators, e.g. "HLA-A*02:01".
func NormalizeAllele(allele string) string {
	return strings.ToUpper(strings.TrimSpace(allele))
}

// CompactAllele strips "*" and ":" from an allele identifier, producing the
// key format used by the immunogenicity mask table (e.g. "HLA-A0201").
func CompactAllele(allele string) string {
	a := NormalizeAllele(allele)
	a = strings.ReplaceAll(a, "*", "")
	return strings.ReplaceAll(a, ":", "")
}
