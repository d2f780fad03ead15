// Package analyze orchestrates the prediction pipeline: binding prediction,
// immunogenicity scoring, result combination, and filtering.
package analyze

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/epilab/pepscan/internal/combine"
	"github.com/epilab/pepscan/internal/iedb"
	"github.com/epilab/pepscan/internal/immuno"
	"github.com/epilab/pepscan/internal/peptide"
)

// Predictor is the capability the pipeline needs from the prediction
// service: submit a batch, get normalized rows back. Tests substitute a
// deterministic stub.
type Predictor interface {
	Predict(ctx context.Context, peptides []string, alleles []string, methods []iedb.Method, opts iedb.Options) ([]iedb.BindingRecord, []iedb.FailedEntry, error)
}

// Analyzer runs the full analysis pipeline over a peptide set.
type Analyzer struct {
	predictor Predictor
	scale     *immuno.Scale
	logger    *zap.Logger
}

// NewAnalyzer creates an analyzer using the given predictor and
// immunogenicity scale.
func NewAnalyzer(p Predictor, scale *immuno.Scale) *Analyzer {
	return &Analyzer{
		predictor: p,
		scale:     scale,
		logger:    zap.NewNop(),
	}
}

// SetLogger sets the logger for progress and summary messages.
func (a *Analyzer) SetLogger(l *zap.Logger) {
	a.logger = l
}

// Options configure a pipeline run.
type Options struct {
	// Binding holds batching/pacing options passed to the predictor.
	Binding iedb.Options

	// Methods to query; defaults to elution likelihood plus binding
	// affinity so results carry both an EL score and an IC50.
	Methods []iedb.Method

	// Immunogenicity enables Calis scoring of every predicted peptide.
	Immunogenicity bool

	// Mask overrides the allele-derived anchor mask (1-indexed positions).
	Mask []int

	// Filter is applied to the combined results; empty keeps everything.
	Filter combine.Criteria
}

// Report is the outcome of a run. Partial failures never discard the
// successful remainder; both sides are always reported.
type Report struct {
	Results        []combine.CombinedResult
	Failed         []iedb.FailedEntry
	ImmunoFailures []immuno.Failure

	// Succeeded counts records analyzed without error, before filtering;
	// a record the filter rejects was still analyzed successfully.
	// FailedCount tallies prediction and scoring failures.
	Succeeded   int
	FailedCount int
}

// Run predicts binding for every (peptide, allele) pair, optionally scores
// immunogenicity, combines the records, and filters them.
func (a *Analyzer) Run(ctx context.Context, peptides []string, alleles []string, opts Options) (*Report, error) {
	methods := opts.Methods
	if len(methods) == 0 {
		methods = []iedb.Method{iedb.MethodNetMHCpanEL, iedb.MethodNetMHCpanBA}
	}

	records, failed, err := a.predictor.Predict(ctx, peptides, alleles, methods, opts.Binding)
	if err != nil {
		return nil, fmt.Errorf("binding prediction: %w", err)
	}

	merged := mergeMethods(records)

	var immunoRecords []immuno.Record
	var immunoFailures []immuno.Failure
	if opts.Immunogenicity {
		perAllele := uniquePeptidesByAllele(merged)
		for _, allele := range alleles {
			allele = peptide.NormalizeAllele(allele)
			recs, fails := a.scale.ScoreAll(perAllele[allele], allele, opts.Mask)
			immunoRecords = append(immunoRecords, recs...)
			immunoFailures = append(immunoFailures, fails...)
		}
	}

	combined := combine.Combine(merged, immunoRecords)

	filtered, err := combine.Filter(combined, opts.Filter)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Results:        filtered,
		Failed:         failed,
		ImmunoFailures: immunoFailures,
		Succeeded:      len(combined),
		FailedCount:    len(failed) + len(immunoFailures),
	}

	a.logger.Info("analysis complete",
		zap.Int("peptides", len(peptides)),
		zap.Int("alleles", len(alleles)),
		zap.Int("analyzed", report.Succeeded),
		zap.Int("results", len(filtered)),
		zap.Int("failed", report.FailedCount))

	return report, nil
}

// mergeMethods folds per-method records into one record per
// (peptide, allele): the elution method contributes the score and
// percentile rank, the affinity method contributes the IC50. Selection is
// by method identity, not arrival order, so concurrent completion order
// never changes the merged values. First-seen order of each pair is
// preserved.
func mergeMethods(records []iedb.BindingRecord) []iedb.BindingRecord {
	type key struct{ peptide, allele string }

	idx := make(map[key]int, len(records))
	var merged []iedb.BindingRecord

	for _, r := range records {
		k := key{r.Peptide, r.Allele}
		i, seen := idx[k]
		if !seen {
			idx[k] = len(merged)
			merged = append(merged, r)
			continue
		}

		m := &merged[i]
		if r.HasScore && (!m.HasScore || takesScoreFrom(r.Method, m.Method)) {
			m.Score = r.Score
			m.HasScore = true
			m.PercentileRank = r.PercentileRank
			m.Method = r.Method
		}
		if r.HasIC50 && !m.HasIC50 {
			m.IC50 = r.IC50
			m.HasIC50 = true
		}
	}

	return merged
}

// takesScoreFrom reports whether candidate should supply the score and rank
// over current. The affinity method's score is a stand-in, kept only until a
// proper elution-style record for the pair arrives.
func takesScoreFrom(candidate, current iedb.Method) bool {
	return current == iedb.MethodNetMHCpanBA && candidate != iedb.MethodNetMHCpanBA
}

// uniquePeptidesByAllele collects each allele's successfully predicted
// peptides, deduplicated, in record order. The normalized allele strings in
// the records are the map keys.
func uniquePeptidesByAllele(records []iedb.BindingRecord) map[string][]string {
	seen := make(map[string]map[string]bool)
	out := make(map[string][]string)
	for _, r := range records {
		if seen[r.Allele] == nil {
			seen[r.Allele] = make(map[string]bool)
		}
		if !seen[r.Allele][r.Peptide] {
			seen[r.Allele][r.Peptide] = true
			out[r.Allele] = append(out[r.Allele], r.Peptide)
		}
	}
	return out
}
