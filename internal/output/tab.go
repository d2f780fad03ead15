// Package output provides result export writers.
package output

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/epilab/pepscan/internal/combine"
)

// resultColumns is the output record schema, in column order. The nullable
// fields (ic50, immunogenicity_score, composite_score, category) are empty
// when immunogenicity or affinity was not requested.
var resultColumns = []string{
	"peptide",
	"allele",
	"el_score",
	"percentile_rank",
	"ic50",
	"immunogenicity_score",
	"composite_score",
	"category",
}

// ResultWriter is the interface export writers implement.
type ResultWriter interface {
	WriteHeader() error
	Write(r *combine.CombinedResult) error
	Flush() error
}

// TabWriter writes combined results in tab-delimited format, with "-" for
// absent values.
type TabWriter struct {
	w *bufio.Writer
}

// NewTabWriter creates a new tab-delimited writer.
func NewTabWriter(w io.Writer) *TabWriter {
	return &TabWriter{w: bufio.NewWriter(w)}
}

// WriteHeader writes the header line.
func (tw *TabWriter) WriteHeader() error {
	_, err := tw.w.WriteString(strings.Join(resultColumns, "\t") + "\n")
	return err
}

// Write writes a single result row.
func (tw *TabWriter) Write(r *combine.CombinedResult) error {
	fields := resultFields(r, "-")
	_, err := tw.w.WriteString(strings.Join(fields, "\t") + "\n")
	return err
}

// Flush flushes buffered output.
func (tw *TabWriter) Flush() error {
	return tw.w.Flush()
}

// resultFields renders a result into schema order, substituting absent for
// fields the record does not carry.
func resultFields(r *combine.CombinedResult, absent string) []string {
	fields := make([]string, 0, len(resultColumns))
	fields = append(fields, r.Peptide, r.Allele)

	if r.HasBinding {
		fields = append(fields,
			formatFloat(r.BindingScore),
			formatFloat(r.PercentileRank))
	} else {
		fields = append(fields, absent, absent)
	}

	if r.HasIC50 {
		fields = append(fields, formatFloat(r.IC50))
	} else {
		fields = append(fields, absent)
	}

	if r.HasImmunogenicity {
		fields = append(fields,
			formatFloat(r.ImmunogenicityScore),
			formatFloat(r.CompositeScore),
			string(r.Category))
	} else {
		fields = append(fields, absent, absent, absent)
	}

	return fields
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
