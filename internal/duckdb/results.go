package duckdb

import (
	"context"
	"database/sql/driver"
	"fmt"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/epilab/pepscan/internal/combine"
)

// resultKey is the composite key for deduplicating results before writing.
type resultKey struct {
	peptide, allele string
}

// WriteResults batch-inserts combined results using the Appender API.
// Duplicate (peptide, allele) entries are deduplicated before writing;
// absent optional fields are stored as NULL.
func (s *Store) WriteResults(results []combine.CombinedResult) error {
	if len(results) == 0 {
		return nil
	}

	seen := make(map[resultKey]bool, len(results))
	deduped := make([]combine.CombinedResult, 0, len(results))
	for _, r := range results {
		k := resultKey{r.Peptide, r.Allele}
		if !seen[k] {
			seen[k] = true
			deduped = append(deduped, r)
		}
	}

	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "peptide_results")
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	for _, r := range deduped {
		if err := appender.AppendRow(
			r.Peptide, r.Allele,
			nullable(r.BindingScore, r.HasBinding),
			nullable(r.PercentileRank, r.HasBinding),
			nullable(r.IC50, r.HasIC50),
			nullable(r.ImmunogenicityScore, r.HasImmunogenicity),
			nullable(r.CompositeScore, r.HasImmunogenicity),
			nullableString(string(r.Category)),
		); err != nil {
			return fmt.Errorf("append result: %w", err)
		}
	}

	return appender.Flush()
}

// QueryResults returns stored results, optionally restricted to one allele
// and/or category, ordered by composite score descending with NULLs last.
func (s *Store) QueryResults(allele string, category combine.Category) ([]combine.CombinedResult, error) {
	query := `SELECT peptide, allele, el_score, percentile_rank, ic50,
		immunogenicity_score, composite_score, category
		FROM peptide_results WHERE 1=1`
	var args []any
	if allele != "" {
		query += " AND allele = ?"
		args = append(args, allele)
	}
	if category != combine.CategoryNone {
		query += " AND category = ?"
		args = append(args, string(category))
	}
	query += " ORDER BY composite_score DESC NULLS LAST, peptide"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []combine.CombinedResult
	for rows.Next() {
		var r combine.CombinedResult
		var elScore, rank, ic50, immunoScore, composite *float64
		var category *string
		if err := rows.Scan(&r.Peptide, &r.Allele, &elScore, &rank, &ic50,
			&immunoScore, &composite, &category); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}

		if elScore != nil {
			r.BindingScore = *elScore
			r.HasBinding = true
		}
		if rank != nil {
			r.PercentileRank = *rank
		} else {
			r.PercentileRank = 100
		}
		if ic50 != nil {
			r.IC50 = *ic50
			r.HasIC50 = true
		}
		if immunoScore != nil {
			r.ImmunogenicityScore = *immunoScore
			r.HasImmunogenicity = true
		}

		// Rebuild derived fields from primitives rather than trusting the
		// stored copies.
		results = append(results, combine.Derive(r))
	}

	return results, rows.Err()
}

// ClearResults removes all stored results.
func (s *Store) ClearResults() error {
	_, err := s.db.Exec("DELETE FROM peptide_results")
	return err
}

func nullable(v float64, ok bool) any {
	if !ok {
		return nil
	}
	return v
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
