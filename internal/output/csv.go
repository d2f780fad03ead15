package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/epilab/pepscan/internal/combine"
	"github.com/epilab/pepscan/internal/peptide"
)

// CSVOptions control the CSV dialect. European spreadsheet tools expect a
// ";" field separator with "," as the decimal mark.
type CSVOptions struct {
	Separator    rune // field separator, ',' or ';'; default ','
	DecimalComma bool // write decimal commas instead of points
}

func (o CSVOptions) withDefaults() (CSVOptions, error) {
	if o.Separator == 0 {
		o.Separator = ','
	}
	if o.Separator != ',' && o.Separator != ';' {
		return o, &peptide.ConfigurationError{Message: fmt.Sprintf("invalid CSV separator %q", o.Separator)}
	}
	if o.DecimalComma && o.Separator == ',' {
		return o, &peptide.ConfigurationError{Message: "decimal comma requires the ';' field separator"}
	}
	return o, nil
}

// CSVWriter writes combined results as CSV, with empty strings for absent
// values.
type CSVWriter struct {
	w    *csv.Writer
	opts CSVOptions
}

// NewCSVWriter creates a CSV writer with the given dialect options.
func NewCSVWriter(w io.Writer, opts CSVOptions) (*CSVWriter, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	cw := csv.NewWriter(w)
	cw.Comma = opts.Separator
	return &CSVWriter{w: cw, opts: opts}, nil
}

// WriteHeader writes the column header row.
func (cw *CSVWriter) WriteHeader() error {
	return cw.w.Write(resultColumns)
}

// Write writes a single result row.
func (cw *CSVWriter) Write(r *combine.CombinedResult) error {
	fields := resultFields(r, "")
	if cw.opts.DecimalComma {
		// Numeric fields only; peptide, allele, and category never
		// contain a point.
		for i, f := range fields {
			fields[i] = strings.ReplaceAll(f, ".", ",")
		}
	}
	return cw.w.Write(fields)
}

// Flush flushes buffered output.
func (cw *CSVWriter) Flush() error {
	cw.w.Flush()
	return cw.w.Error()
}

// ReadCSV reads results previously written with a CSVWriter. Derived fields
// are recomputed from the primitives rather than trusted from the file, so
// a written-then-read record always carries consistent values.
func ReadCSV(r io.Reader, opts CSVOptions) ([]combine.CombinedResult, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(r)
	cr.Comma = opts.Separator

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"peptide", "allele"} {
		if _, ok := colIdx[required]; !ok {
			return nil, fmt.Errorf("CSV is missing the %q column", required)
		}
	}

	var results []combine.CombinedResult
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV row: %w", err)
		}

		rec := combine.CombinedResult{
			Peptide: field(row, colIdx, "peptide"),
			Allele:  field(row, colIdx, "allele"),
		}

		if v, ok := floatField(row, colIdx, "el_score", opts); ok {
			rec.BindingScore = v
			rec.HasBinding = true
		}
		if v, ok := floatField(row, colIdx, "percentile_rank", opts); ok {
			rec.PercentileRank = v
		} else if !rec.HasBinding {
			rec.PercentileRank = 100
		}
		if v, ok := floatField(row, colIdx, "ic50", opts); ok {
			rec.IC50 = v
			rec.HasIC50 = true
		}
		if v, ok := floatField(row, colIdx, "immunogenicity_score", opts); ok {
			rec.ImmunogenicityScore = v
			rec.HasImmunogenicity = true
		}

		results = append(results, combine.Derive(rec))
	}

	return results, nil
}

func field(row []string, colIdx map[string]int, name string) string {
	i, ok := colIdx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func floatField(row []string, colIdx map[string]int, name string, opts CSVOptions) (float64, bool) {
	s := field(row, colIdx, name)
	if s == "" || s == "-" {
		return 0, false
	}
	if opts.DecimalComma {
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
