// Package immuno computes position-weighted peptide immunogenicity indices
// using the Calis et al. scheme.
package immuno

import (
	"fmt"
	"math"
	"sort"

	"github.com/epilab/pepscan/internal/peptide"
)

// ReferenceLength is the peptide length the scale was derived for.
const ReferenceLength = 9

// Record is the immunogenicity result for a single peptide.
type Record struct {
	Peptide string
	Allele  string // empty when no allele was supplied

	// Score is the position-weighted immunogenicity index, nominally in
	// [-1, 1] for a 9-mer.
	Score float64

	// MaskedPositions lists the 1-indexed positions excluded from scoring,
	// in ascending order.
	MaskedPositions []int
}

// Failure pairs a peptide with the error that prevented scoring it.
type Failure struct {
	Peptide string
	Err     error
}

// Scale is the process-wide, read-only scoring configuration: the amino
// acid scale, position weights, and allele mask table. It is loaded once
// and injected rather than accessed as mutable global state.
type Scale struct {
	scale   map[byte]float64
	weights []float64
	masks   map[string][]int
}

// DefaultScale returns the standard Calis et al. scale.
func DefaultScale() *Scale {
	return &Scale{
		scale:   immunoscale,
		weights: immunoweight,
		masks:   alleleMasks,
	}
}

// MaskForAllele returns the anchor mask for an allele, in either canonical
// ("HLA-A*02:01") or compact ("HLA-A0201") form. ok is false when the
// allele has no table entry.
func (s *Scale) MaskForAllele(allele string) (mask []int, ok bool) {
	m, ok := s.masks[peptide.CompactAllele(allele)]
	if !ok {
		return nil, false
	}
	out := make([]int, len(m))
	copy(out, m)
	return out, true
}

// Score computes the immunogenicity index for a peptide.
//
// The effective mask is chosen in precedence order: the allele's table entry
// when the allele is known, then customMask, then the default anchor mask
// {1, 2, C-terminus}. A supplied customMask is therefore ignored for alleles
// with a table entry; it only applies to unknown alleles or when no allele is
// given. Mask positions are 1-indexed and must lie within the peptide.
// Peptides longer than the 9-mer reference stretch the weight vector by
// repeating the middle weight; shorter peptides are rejected.
func (s *Scale) Score(pep string, allele string, customMask []int) (Record, error) {
	if err := peptide.Validate(pep); err != nil {
		return Record{}, err
	}
	peplen := len(pep)
	if peplen < ReferenceLength {
		return Record{}, &peptide.ValidationError{
			Message: fmt.Sprintf("peptide %s is shorter than the %d-mer reference length", pep, ReferenceLength),
		}
	}

	mask, err := s.effectiveMask(peplen, allele, customMask)
	if err != nil {
		return Record{}, err
	}

	weights := stretchWeights(s.weights, peplen)

	masked := make(map[int]bool, len(mask))
	for _, pos := range mask {
		masked[pos] = true
	}

	score := 0.0
	for i := 0; i < peplen; i++ {
		if masked[i+1] {
			continue
		}
		score += weights[i] * s.scale[pep[i]]
	}

	return Record{
		Peptide:         pep,
		Allele:          peptide.NormalizeAllele(allele),
		Score:           round(score, 5),
		MaskedPositions: mask,
	}, nil
}

// ScoreAll scores peptides one by one, collecting per-item failures
// alongside successes rather than aborting the batch.
func (s *Scale) ScoreAll(peptides []string, allele string, customMask []int) ([]Record, []Failure) {
	var records []Record
	var failures []Failure
	for _, p := range peptides {
		rec, err := s.Score(p, allele, customMask)
		if err != nil {
			failures = append(failures, Failure{Peptide: p, Err: err})
			continue
		}
		records = append(records, rec)
	}
	return records, failures
}

func (s *Scale) effectiveMask(peplen int, allele string, customMask []int) ([]int, error) {
	var mask []int
	switch {
	case allele != "" && hasMask(s.masks, allele):
		mask, _ = s.MaskForAllele(allele)
	case len(customMask) > 0:
		mask = append([]int(nil), customMask...)
	default:
		mask = []int{1, 2, peplen}
	}

	for _, pos := range mask {
		if pos < 1 || pos > peplen {
			return nil, &peptide.ValidationError{
				Position: pos,
				Message:  fmt.Sprintf("mask position %d outside peptide of length %d", pos, peplen),
			}
		}
	}
	sort.Ints(mask)
	return mask, nil
}

func hasMask(masks map[string][]int, allele string) bool {
	_, ok := masks[peptide.CompactAllele(allele)]
	return ok
}

// stretchWeights adapts the 9-mer weight vector to longer peptides by
// repeating the 0.30 middle weight after position 5, as the published
// implementation does.
func stretchWeights(w []float64, peplen int) []float64 {
	if peplen <= len(w) {
		return w
	}
	out := make([]float64, 0, peplen)
	out = append(out, w[:5]...)
	for i := 0; i < peplen-len(w); i++ {
		out = append(out, 0.30)
	}
	return append(out, w[5:]...)
}

func round(v float64, digits int) float64 {
	scale := math.Pow10(digits)
	return math.Round(v*scale) / scale
}
