package iedb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const elResponse = "allele\tseq_num\tstart\tend\tlength\tpeptide\tscore\tpercentile_rank\n" +
	"HLA-A*02:01\t1\t1\t9\t9\tSLYNTVATL\t0.9746\t0.05\n" +
	"HLA-A*02:01\t2\t1\t9\t9\tLLFGYPVYV\t0.8912\t0.12\n"

const baResponse = "allele\tseq_num\tstart\tend\tlength\tpeptide\tnetmhcpan_ba_ic50\tnetmhcpan_ba_rank\n" +
	"HLA-A*02:01\t1\t1\t9\t9\tSLYNTVATL\t12.4\t0.08\n"

func TestParseResponse_ELColumns(t *testing.T) {
	rows, err := parseResponse(MethodNetMHCpanEL, "HLA-A*02:01", elResponse)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	r := rows[0]
	assert.Equal(t, "SLYNTVATL", r.peptide)
	assert.Empty(t, r.err)
	assert.Equal(t, "HLA-A*02:01", r.record.Allele)
	assert.True(t, r.record.HasScore)
	assert.InDelta(t, 0.9746, r.record.Score, 1e-9)
	assert.InDelta(t, 0.05, r.record.PercentileRank, 1e-9)
	assert.False(t, r.record.HasIC50)
}

func TestParseResponse_BAColumns(t *testing.T) {
	rows, err := parseResponse(MethodNetMHCpanBA, "HLA-A*02:01", baResponse)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	r := rows[0]
	assert.Empty(t, r.err)
	assert.True(t, r.record.HasIC50)
	assert.InDelta(t, 12.4, r.record.IC50, 1e-9)
	assert.InDelta(t, 0.08, r.record.PercentileRank, 1e-9)
}

func TestParseResponse_MethodPrefixedColumns(t *testing.T) {
	body := "allele\tpeptide\tnetmhcpan_el_score\tnetmhcpan_el_rank\n" +
		"HLA-A*02:01\tSLYNTVATL\t0.91\t0.3\n"
	rows, err := parseResponse(MethodNetMHCpanEL, "HLA-A*02:01", body)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 0.91, rows[0].record.Score, 1e-9)
	assert.InDelta(t, 0.3, rows[0].record.PercentileRank, 1e-9)
}

func TestParseResponse_UnscorableRow(t *testing.T) {
	body := "allele\tpeptide\tscore\tpercentile_rank\n" +
		"HLA-A*02:01\tSLYNTVATL\t0.97\t0.05\n" +
		"HLA-A*02:01\tLLFGYPVYV\t-\t-\n" +
		"HLA-A*02:01\tGILGFVFTL\t0.88\tnot-a-number\n"
	rows, err := parseResponse(MethodNetMHCpanEL, "HLA-A*02:01", body)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Empty(t, rows[0].err)
	assert.NotEmpty(t, rows[1].err, "dash values must mark the row unscorable")
	assert.NotEmpty(t, rows[2].err, "malformed numbers must mark the row unscorable")
}

func TestParseResponse_ErrorBody(t *testing.T) {
	_, err := parseResponse(MethodNetMHCpanEL, "HLA-A*99:99", "Allele HLA-A*99:99 is not available for method netmhcpan_el")
	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Contains(t, svcErr.Message, "not available")
}

func TestParseResponse_SkipsComments(t *testing.T) {
	body := "allele\tpeptide\tscore\tpercentile_rank\n" +
		"# generated by netmhcpan\n" +
		"HLA-A*02:01\tSLYNTVATL\t0.97\t0.05\n"
	rows, err := parseResponse(MethodNetMHCpanEL, "HLA-A*02:01", body)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestMethodValidity(t *testing.T) {
	for _, m := range Methods() {
		assert.True(t, m.IsValid(), "method %s", m)
	}
	assert.False(t, Method("netmhcpan_xx").IsValid())
}
