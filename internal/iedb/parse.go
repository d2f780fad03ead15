package iedb

import (
	"fmt"
	"strconv"
	"strings"
)

// row is one parsed data row from a prediction response.
type row struct {
	peptide string
	record  BindingRecord
	err     string // non-empty when the service reported the row unscorable
}

// parseResponse parses a tab-delimited response body into rows. The body
// must have a header row naming at least a "peptide" column; the score,
// rank, and IC50 columns are located by the method's column candidates.
// A body with no recognizable header is a ServiceError: the service reports
// bad alleles and malformed input as plain text rather than a table.
func parseResponse(method Method, allele, body string) ([]row, error) {
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, &ServiceError{Message: "empty response body"}
	}

	header := strings.Split(strings.TrimRight(lines[0], "\r"), "\t")
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.TrimSpace(name)] = i
	}

	pepIdx, ok := colIdx["peptide"]
	if !ok {
		// No tabular payload; the body is the service's error message.
		msg := strings.TrimSpace(body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, &ServiceError{Message: msg}
	}

	scoreIdx := findColumn(colIdx, method.scoreColumns())
	rankIdx := findColumn(colIdx, method.rankColumns())
	ic50Idx := findColumn(colIdx, method.ic50Columns())
	if rankIdx < 0 {
		return nil, &ServiceError{Message: "response has no percentile rank column for method " + string(method)}
	}

	var rows []row
	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) <= pepIdx {
			continue
		}

		r := row{peptide: strings.ToUpper(strings.TrimSpace(fields[pepIdx]))}
		rec := BindingRecord{
			Peptide: r.peptide,
			Allele:  allele,
			Method:  method,
		}

		rank, err := fieldFloat(fields, rankIdx)
		if err != nil {
			r.err = "service: unscorable percentile rank: " + err.Error()
			rows = append(rows, r)
			continue
		}
		rec.PercentileRank = rank

		if scoreIdx >= 0 {
			if score, err := fieldFloat(fields, scoreIdx); err == nil {
				rec.Score = score
				rec.HasScore = true
			} else if ic50Idx < 0 {
				// A method without an IC50 column must deliver a score.
				r.err = "service: unscorable score: " + err.Error()
				rows = append(rows, r)
				continue
			}
		}

		if ic50Idx >= 0 {
			if ic50, err := fieldFloat(fields, ic50Idx); err == nil {
				rec.IC50 = ic50
				rec.HasIC50 = true
			} else if !rec.HasScore {
				r.err = "service: unscorable IC50: " + err.Error()
				rows = append(rows, r)
				continue
			}
		}

		r.record = rec
		rows = append(rows, r)
	}

	if len(rows) == 0 {
		return nil, &ServiceError{Message: "response contained no data rows"}
	}

	return rows, nil
}

// findColumn returns the index of the first candidate present in the header.
func findColumn(colIdx map[string]int, candidates []string) int {
	for _, name := range candidates {
		if i, ok := colIdx[name]; ok {
			return i
		}
	}
	return -1
}

// fieldFloat parses a numeric field. The service marks values it could not
// compute with "-".
func fieldFloat(fields []string, idx int) (float64, error) {
	if idx >= len(fields) {
		return 0, fmt.Errorf("missing field %d", idx)
	}
	s := strings.TrimSpace(fields[idx])
	if s == "" || s == "-" {
		return 0, fmt.Errorf("no value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed number %q", s)
	}
	return v, nil
}
