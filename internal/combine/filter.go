package combine

import (
	"github.com/epilab/pepscan/internal/peptide"
)

// Op is a comparison operator for filter criteria.
type Op string

const (
	OpLT Op = "<"
	OpLE Op = "<="
	OpGT Op = ">"
	OpGE Op = ">="
	OpEQ Op = "=="
)

// Criterion is one numeric threshold comparison.
type Criterion struct {
	Op        Op
	Threshold float64
}

// Criteria maps a field name to its threshold comparison. Supported fields:
// percentile_rank, binding_score, ic50, immunogenicity_score,
// composite_score. All supplied criteria must hold for a record to pass
// (logical AND); fields without a criterion are unconstrained.
type Criteria map[string]Criterion

// filterFields maps criterion field names to value extractors. The second
// return is false when the record does not carry the field.
var filterFields = map[string]func(r *CombinedResult) (float64, bool){
	"percentile_rank": func(r *CombinedResult) (float64, bool) {
		return r.PercentileRank, r.HasBinding
	},
	"binding_score": func(r *CombinedResult) (float64, bool) {
		return r.BindingScore, r.HasBinding
	},
	"ic50": func(r *CombinedResult) (float64, bool) {
		return r.IC50, r.HasIC50
	},
	"immunogenicity_score": func(r *CombinedResult) (float64, bool) {
		return r.ImmunogenicityScore, r.HasImmunogenicity
	},
	"composite_score": func(r *CombinedResult) (float64, bool) {
		return r.CompositeScore, r.HasImmunogenicity
	},
}

// Filter returns the records satisfying every criterion, preserving input
// order. Empty criteria return the input unchanged. An unknown field or
// operator is a ConfigurationError.
func Filter(records []CombinedResult, criteria Criteria) ([]CombinedResult, error) {
	if len(criteria) == 0 {
		return records, nil
	}

	for field, c := range criteria {
		if _, ok := filterFields[field]; !ok {
			return nil, &peptide.ConfigurationError{Message: "unknown filter field " + field}
		}
		switch c.Op {
		case OpLT, OpLE, OpGT, OpGE, OpEQ:
		default:
			return nil, &peptide.ConfigurationError{Message: "unknown filter operator " + string(c.Op)}
		}
	}

	var out []CombinedResult
	for i := range records {
		if matches(&records[i], criteria) {
			out = append(out, records[i])
		}
	}
	return out, nil
}

func matches(r *CombinedResult, criteria Criteria) bool {
	for field, c := range criteria {
		v, ok := filterFields[field](r)
		if !ok || !compare(v, c.Op, c.Threshold) {
			return false
		}
	}
	return true
}

func compare(v float64, op Op, threshold float64) bool {
	switch op {
	case OpLT:
		return v < threshold
	case OpLE:
		return v <= threshold
	case OpGT:
		return v > threshold
	case OpGE:
		return v >= threshold
	case OpEQ:
		return v == threshold
	default:
		return false
	}
}
