package combine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epilab/pepscan/internal/iedb"
	"github.com/epilab/pepscan/internal/immuno"
)

func TestDerive_CompositeScore(t *testing.T) {
	// 0.4*0.5 + (1-0.05/100)*0.3 + 0.98*0.2 = 0.2 + 0.2999 + 0.196 = 0.6959
	r := Derive(CombinedResult{
		Peptide:             "SLYNTVATL",
		Allele:              "HLA-A*02:01",
		BindingScore:        0.98,
		PercentileRank:      0.05,
		HasBinding:          true,
		ImmunogenicityScore: 0.4,
		HasImmunogenicity:   true,
	})

	assert.InDelta(t, 0.6959, r.CompositeScore, 1e-9)
	assert.Equal(t, CategoryExcellent, r.Category)
}

func TestDerive_Categories(t *testing.T) {
	tests := []struct {
		name     string
		immuno   float64
		rank     float64
		binding  float64
		category Category
	}{
		{"excellent", 0.4, 0.05, 0.98, CategoryExcellent},
		{"good", 0.1, 0.3, 0.92, CategoryGood},
		{"consider", 0.1, 0.8, 0.85, CategoryConsider},
		{"discard low binding", 0.4, 0.05, 0.7, CategoryDiscard},
		{"discard negative immuno", -0.2, 0.05, 0.98, CategoryDiscard},
		{"discard high rank", 0.4, 2.0, 0.98, CategoryDiscard},

		// Strict comparators: rank exactly 0.5 misses Good and falls
		// through to Consider.
		{"rank boundary", 0.1, 0.5, 0.92, CategoryConsider},
		// Immunogenicity exactly 0.3 misses Excellent.
		{"immuno boundary", 0.3, 0.05, 0.98, CategoryGood},
		// Rank exactly 1.0 misses Consider entirely.
		{"consider boundary", 0.1, 1.0, 0.85, CategoryDiscard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Derive(CombinedResult{
				ImmunogenicityScore: tt.immuno,
				HasImmunogenicity:   true,
				PercentileRank:      tt.rank,
				BindingScore:        tt.binding,
				HasBinding:          true,
			})
			assert.Equal(t, tt.category, r.Category)
		})
	}
}

func TestDerive_WithoutImmunogenicity(t *testing.T) {
	r := Derive(CombinedResult{
		Peptide:        "SLYNTVATL",
		BindingScore:   0.98,
		PercentileRank: 0.05,
		HasBinding:     true,
	})
	assert.Equal(t, CategoryNone, r.Category)
	assert.Zero(t, r.CompositeScore)
}

func TestDerive_Rounding(t *testing.T) {
	r := Derive(CombinedResult{
		ImmunogenicityScore: 0.33333,
		HasImmunogenicity:   true,
		PercentileRank:      0.333,
		BindingScore:        0.911,
		HasBinding:          true,
	})
	// 0.166665 + 0.299001 + 0.1822 = 0.647866 -> 0.6479
	assert.InDelta(t, 0.6479, r.CompositeScore, 1e-9)
}

func TestCombine_JoinsOnPeptideAndAllele(t *testing.T) {
	bindings := []iedb.BindingRecord{
		{Peptide: "SLYNTVATL", Allele: "HLA-A*02:01", Score: 0.98, HasScore: true, PercentileRank: 0.05, IC50: 12.4, HasIC50: true},
		{Peptide: "LLFGYPVYV", Allele: "HLA-A*02:01", Score: 0.91, HasScore: true, PercentileRank: 0.4},
	}
	immunos := []immuno.Record{
		{Peptide: "SLYNTVATL", Allele: "HLA-A*02:01", Score: 0.4},
	}

	results := Combine(bindings, immunos)
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, "SLYNTVATL", first.Peptide)
	assert.True(t, first.HasImmunogenicity)
	assert.True(t, first.HasIC50)
	assert.Equal(t, CategoryExcellent, first.Category)

	second := results[1]
	assert.Equal(t, "LLFGYPVYV", second.Peptide)
	assert.False(t, second.HasImmunogenicity, "missing side is flagged as defaulted")
	assert.Zero(t, second.ImmunogenicityScore)
	assert.Equal(t, CategoryNone, second.Category)
}

func TestCombine_PeptideWideImmunogenicity(t *testing.T) {
	// An immunogenicity record without an allele applies to every allele
	// of that peptide.
	bindings := []iedb.BindingRecord{
		{Peptide: "SLYNTVATL", Allele: "HLA-A*02:01", Score: 0.98, HasScore: true, PercentileRank: 0.05},
		{Peptide: "SLYNTVATL", Allele: "HLA-B*07:02", Score: 0.85, HasScore: true, PercentileRank: 0.9},
	}
	immunos := []immuno.Record{
		{Peptide: "SLYNTVATL", Score: 0.4},
	}

	results := Combine(bindings, immunos)
	require.Len(t, results, 2)
	assert.True(t, results[0].HasImmunogenicity)
	assert.True(t, results[1].HasImmunogenicity)
	assert.Equal(t, CategoryExcellent, results[0].Category)
	assert.Equal(t, CategoryConsider, results[1].Category)
}

func TestCombine_ImmunogenicityOnly(t *testing.T) {
	immunos := []immuno.Record{
		{Peptide: "SLYNTVATL", Allele: "HLA-A*02:01", Score: 0.4},
	}

	results := Combine(nil, immunos)
	require.Len(t, results, 1)

	r := results[0]
	assert.False(t, r.HasBinding)
	assert.Zero(t, r.BindingScore)
	assert.Equal(t, 100.0, r.PercentileRank, "missing binding defaults to the weakest rank")
	assert.Equal(t, CategoryDiscard, r.Category)
}
