// Package combine merges binding and immunogenicity records into scored,
// categorized results and filters them by numeric thresholds.
package combine

import (
	"math"

	"github.com/epilab/pepscan/internal/iedb"
	"github.com/epilab/pepscan/internal/immuno"
)

// Category ranks a candidate epitope by its combined evidence.
type Category string

const (
	CategoryExcellent Category = "Excellent"
	CategoryGood      Category = "Good"
	CategoryConsider  Category = "Consider"
	CategoryDiscard   Category = "Discard"

	// CategoryNone marks results whose immunogenicity was not computed;
	// no category can be derived for them.
	CategoryNone Category = ""
)

// CombinedResult is one scored, categorized record per (peptide, allele).
// It is a value object: derived fields are recomputed on construction and
// never cached independently of their inputs.
type CombinedResult struct {
	Peptide string
	Allele  string

	// BindingScore is the elution-likelihood score in [0, 1].
	BindingScore float64
	// PercentileRank is the population-relative rank in [0, 100].
	PercentileRank float64
	// HasBinding is false when no binding record existed for the pair and
	// neutral defaults (score 0, rank 100) were substituted.
	HasBinding bool

	// IC50 is the predicted affinity in nM, when a binding-affinity method
	// contributed one.
	IC50    float64
	HasIC50 bool

	// ImmunogenicityScore defaults to 0 with HasImmunogenicity false when
	// the peptide was not scored, so consumers can tell computed from
	// defaulted values.
	ImmunogenicityScore float64
	HasImmunogenicity   bool

	// CompositeScore and Category are derived; both are zero-valued when
	// HasImmunogenicity is false.
	CompositeScore float64
	Category       Category
}

// Derive returns a copy of r with CompositeScore and Category recomputed
// from the primitive fields. Results lacking an immunogenicity score get no
// derived values.
func Derive(r CombinedResult) CombinedResult {
	if !r.HasImmunogenicity {
		r.CompositeScore = 0
		r.Category = CategoryNone
		return r
	}
	r.CompositeScore = compositeScore(r.ImmunogenicityScore, r.PercentileRank, r.BindingScore)
	r.Category = categorize(r.ImmunogenicityScore, r.PercentileRank, r.BindingScore)
	return r
}

// compositeScore combines the three signals into a single ranking value:
// immunogenicity carries half the weight, percentile rank (inverted to
// higher-is-better) 0.3, and the raw binding score 0.2. The result is
// rounded to four decimals to match the published tool's output.
func compositeScore(immunoScore, percentileRank, bindingScore float64) float64 {
	score := immunoScore*0.5 + (1-percentileRank/100)*0.3 + bindingScore*0.2
	return math.Round(score*1e4) / 1e4
}

// categorize applies the selection rules in order; the first match wins.
// All comparators are strict.
func categorize(immunoScore, percentileRank, bindingScore float64) Category {
	switch {
	case percentileRank < 0.1 && immunoScore > 0.3 && bindingScore > 0.95:
		return CategoryExcellent
	case percentileRank < 0.5 && immunoScore > 0 && bindingScore > 0.9:
		return CategoryGood
	case percentileRank < 1.0 && immunoScore > 0 && bindingScore > 0.8:
		return CategoryConsider
	default:
		return CategoryDiscard
	}
}

// pairKey joins records on (peptide, allele).
type pairKey struct {
	peptide string
	allele  string
}

// Combine joins binding records and immunogenicity records on
// (peptide, allele) and derives composite scores and categories.
//
// An immunogenicity record with an empty allele applies to every allele of
// that peptide. A pair present on only one side still produces a result,
// with the missing side's fields defaulted and flagged. Output order is
// binding-record order, then leftover immunogenicity-only records in input
// order.
func Combine(bindings []iedb.BindingRecord, immunos []immuno.Record) []CombinedResult {
	byPair := make(map[pairKey]immuno.Record)
	byPeptide := make(map[string]immuno.Record)
	used := make(map[pairKey]bool)
	for _, im := range immunos {
		if im.Allele != "" {
			byPair[pairKey{im.Peptide, im.Allele}] = im
		} else if _, ok := byPeptide[im.Peptide]; !ok {
			byPeptide[im.Peptide] = im
		}
	}

	results := make([]CombinedResult, 0, len(bindings))
	for _, b := range bindings {
		r := CombinedResult{
			Peptide:        b.Peptide,
			Allele:         b.Allele,
			BindingScore:   b.Score,
			PercentileRank: b.PercentileRank,
			HasBinding:     true,
			IC50:           b.IC50,
			HasIC50:        b.HasIC50,
		}

		key := pairKey{b.Peptide, b.Allele}
		if im, ok := byPair[key]; ok {
			r.ImmunogenicityScore = im.Score
			r.HasImmunogenicity = true
			used[key] = true
		} else if im, ok := byPeptide[b.Peptide]; ok {
			r.ImmunogenicityScore = im.Score
			r.HasImmunogenicity = true
			used[pairKey{b.Peptide, ""}] = true
		}

		results = append(results, Derive(r))
	}

	// Immunogenicity records with no binding counterpart still surface,
	// with neutral binding defaults flagged as such.
	for _, im := range immunos {
		key := pairKey{im.Peptide, im.Allele}
		if used[key] {
			continue
		}
		if im.Allele != "" {
			if _, ok := byPair[key]; !ok {
				continue // duplicate collapsed during indexing
			}
			delete(byPair, key)
		} else {
			if _, ok := byPeptide[im.Peptide]; !ok {
				continue
			}
			delete(byPeptide, im.Peptide)
		}

		results = append(results, Derive(CombinedResult{
			Peptide:             im.Peptide,
			Allele:              im.Allele,
			BindingScore:        0,
			PercentileRank:      100,
			HasBinding:          false,
			ImmunogenicityScore: im.Score,
			HasImmunogenicity:   true,
		}))
	}

	return results
}
