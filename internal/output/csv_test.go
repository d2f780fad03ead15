package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epilab/pepscan/internal/combine"
	"github.com/epilab/pepscan/internal/peptide"
)

func writeCSV(t *testing.T, results []combine.CombinedResult, opts CSVOptions) string {
	t.Helper()
	var buf bytes.Buffer
	cw, err := NewCSVWriter(&buf, opts)
	require.NoError(t, err)
	require.NoError(t, cw.WriteHeader())
	for i := range results {
		require.NoError(t, cw.Write(&results[i]))
	}
	require.NoError(t, cw.Flush())
	return buf.String()
}

func TestCSVRoundTrip(t *testing.T) {
	in := []combine.CombinedResult{
		fullResult(),
		combine.Derive(combine.CombinedResult{
			Peptide:        "LLFGYPVYV",
			Allele:         "HLA-A*02:01",
			BindingScore:   0.91,
			PercentileRank: 0.4,
			HasBinding:     true,
		}),
		combine.Derive(combine.CombinedResult{
			Peptide:             "GILGFVFTL",
			Allele:              "HLA-A*02:01",
			PercentileRank:      100,
			ImmunogenicityScore: 0.2,
			HasImmunogenicity:   true,
		}),
	}

	out := writeCSV(t, in, CSVOptions{})
	got, err := ReadCSV(strings.NewReader(out), CSVOptions{})
	require.NoError(t, err)

	// Derived fields are recomputed on read, so the round trip is exact.
	assert.Equal(t, in, got)
}

func TestCSVRoundTrip_DecimalComma(t *testing.T) {
	in := []combine.CombinedResult{fullResult()}
	opts := CSVOptions{Separator: ';', DecimalComma: true}

	out := writeCSV(t, in, opts)
	assert.Contains(t, out, "0,98", "scores use decimal commas")
	assert.Contains(t, out, ";", "fields use the semicolon separator")

	got, err := ReadCSV(strings.NewReader(out), opts)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestCSVWriter_AbsentIsEmpty(t *testing.T) {
	r := combine.Derive(combine.CombinedResult{
		Peptide:        "LLFGYPVYV",
		Allele:         "HLA-A*02:01",
		BindingScore:   0.91,
		PercentileRank: 0.4,
		HasBinding:     true,
	})

	out := writeCSV(t, []combine.CombinedResult{r}, CSVOptions{})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "LLFGYPVYV,HLA-A*02:01,0.91,0.4,,,,", lines[1])
}

func TestCSVOptions_Validation(t *testing.T) {
	var cerr *peptide.ConfigurationError

	_, err := NewCSVWriter(&bytes.Buffer{}, CSVOptions{Separator: '|'})
	require.ErrorAs(t, err, &cerr, "separator must be ',' or ';'")

	_, err = NewCSVWriter(&bytes.Buffer{}, CSVOptions{DecimalComma: true})
	require.ErrorAs(t, err, &cerr, "decimal comma needs the ';' separator")
}

func TestReadCSV_MissingRequiredColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("peptide,el_score\nSLYNTVATL,0.98\n"), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allele")
}
