// Package iedb provides a client for the IEDB MHC-I tools API.
// It batches peptides per allele and method, paces requests to respect the
// service's rate limits, retries transient failures, and normalizes the
// tab-delimited responses into binding records.
package iedb

// Method identifies a prediction algorithm exposed by the service. The set
// is closed; it determines which response columns carry the scores.
type Method string

const (
	MethodNetMHCpanEL Method = "netmhcpan_el"
	MethodNetMHCpanBA Method = "netmhcpan_ba"
	MethodANN         Method = "ann"
	MethodSMM         Method = "smm"
	MethodComblib     Method = "comblib_sidney2008"
	MethodRecommended Method = "recommended"
)

// Methods lists all supported prediction methods.
func Methods() []Method {
	return []Method{
		MethodNetMHCpanEL,
		MethodNetMHCpanBA,
		MethodANN,
		MethodSMM,
		MethodComblib,
		MethodRecommended,
	}
}

// IsValid reports whether m names a known prediction method.
func (m Method) IsValid() bool {
	for _, known := range Methods() {
		if m == known {
			return true
		}
	}
	return false
}

// scoreColumns returns the response column names that may carry the
// method's primary score, in preference order.
func (m Method) scoreColumns() []string {
	switch m {
	case MethodNetMHCpanEL:
		return []string{"netmhcpan_el_score", "score"}
	case MethodNetMHCpanBA:
		return []string{"netmhcpan_ba_score", "score"}
	case MethodComblib:
		return []string{"comblib_sidney2008_score", "score"}
	default:
		return []string{"score"}
	}
}

// rankColumns returns the response column names that may carry the
// percentile rank, in preference order.
func (m Method) rankColumns() []string {
	switch m {
	case MethodNetMHCpanEL:
		return []string{"netmhcpan_el_rank", "percentile_rank", "rank"}
	case MethodNetMHCpanBA:
		return []string{"netmhcpan_ba_rank", "percentile_rank", "rank"}
	case MethodANN:
		return []string{"ann_rank", "percentile_rank", "rank"}
	case MethodSMM:
		return []string{"smm_rank", "percentile_rank", "rank"}
	case MethodComblib:
		return []string{"comblib_sidney2008_rank", "percentile_rank", "rank"}
	default:
		return []string{"percentile_rank", "rank"}
	}
}

// ic50Columns returns the response column names that may carry an IC50
// value in nM, in preference order.
func (m Method) ic50Columns() []string {
	switch m {
	case MethodNetMHCpanBA:
		return []string{"netmhcpan_ba_ic50", "netmhcpan_ic50", "ic50"}
	case MethodANN:
		return []string{"ann_ic50", "ic50"}
	case MethodSMM:
		return []string{"smm_ic50", "ic50"}
	default:
		return []string{"ic50"}
	}
}

// BindingRecord is one normalized prediction for a (peptide, allele, method)
// combination. Records are immutable once produced.
type BindingRecord struct {
	Peptide string
	Allele  string
	Method  Method

	// Score is the elution-likelihood or probability-like score in [0, 1].
	// Zero with HasScore false when the method reports only IC50.
	Score    float64
	HasScore bool

	// IC50 is the predicted binding affinity in nM (lower is stronger).
	IC50    float64
	HasIC50 bool

	// PercentileRank is the population-relative rank in [0, 100]
	// (lower is stronger).
	PercentileRank float64
}

// FailedEntry records a peptide/allele pair the service could not score,
// either because retries were exhausted or because the service reported the
// row as unscorable. Reasons carry a stable "network:" or "service:" prefix.
type FailedEntry struct {
	Peptide string
	Allele  string
	Reason  string
}
