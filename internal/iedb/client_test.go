package iedb

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epilab/pepscan/internal/peptide"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient()
	c.SetBaseURL(srv.URL)
	c.backoff = time.Millisecond
	return c
}

// fastOptions keeps pacing out of the way in tests.
func fastOptions() Options {
	return Options{BatchSize: 50, Delay: time.Millisecond, Length: 9}
}

func elBody(peptides ...string) string {
	var b strings.Builder
	b.WriteString("allele\tpeptide\tscore\tpercentile_rank\n")
	for i, p := range peptides {
		fmt.Fprintf(&b, "HLA-A*02:01\t%s\t0.9%d\t0.%d\n", p, i, i+1)
	}
	return b.String()
}

func TestClient_Predict(t *testing.T) {
	var requests atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "netmhcpan_el", r.Form.Get("method"))
		assert.Equal(t, "HLA-A*02:01", r.Form.Get("allele"))
		assert.Equal(t, "9", r.Form.Get("length"))

		peptides := strings.Split(r.Form.Get("sequence_text"), "\n")
		// Respond in reverse order; the client must join by value.
		for i, j := 0, len(peptides)-1; i < j; i, j = i+1, j-1 {
			peptides[i], peptides[j] = peptides[j], peptides[i]
		}
		fmt.Fprint(w, elBody(peptides...))
	})

	records, failed, err := c.Predict(context.Background(),
		[]string{"SLYNTVATL", "LLFGYPVYV"},
		[]string{"HLA-A*02:01"},
		[]Method{MethodNetMHCpanEL},
		fastOptions())

	require.NoError(t, err)
	assert.Empty(t, failed)
	require.Len(t, records, 2)
	assert.Equal(t, int32(1), requests.Load())

	// Input order preserved despite the reversed response.
	assert.Equal(t, "SLYNTVATL", records[0].Peptide)
	assert.Equal(t, "LLFGYPVYV", records[1].Peptide)
}

func TestClient_Batching(t *testing.T) {
	var requests atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		require.NoError(t, r.ParseForm())
		peptides := strings.Split(r.Form.Get("sequence_text"), "\n")
		assert.LessOrEqual(t, len(peptides), 2)
		fmt.Fprint(w, elBody(peptides...))
	})

	opts := fastOptions()
	opts.BatchSize = 2
	records, failed, err := c.Predict(context.Background(),
		[]string{"SLYNTVATL", "LLFGYPVYV", "GILGFVFTL"},
		[]string{"HLA-A*02:01"},
		[]Method{MethodNetMHCpanEL},
		opts)

	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Len(t, records, 3)
	assert.Equal(t, int32(2), requests.Load())
}

func TestClient_RetryAfter429(t *testing.T) {
	var requests atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, elBody("SLYNTVATL"))
	})

	records, failed, err := c.Predict(context.Background(),
		[]string{"SLYNTVATL"},
		[]string{"HLA-A*02:01"},
		[]Method{MethodNetMHCpanEL},
		fastOptions())

	require.NoError(t, err)
	assert.Empty(t, failed, "a retried 429 must yield a record, not a failure")
	require.Len(t, records, 1)
	assert.Equal(t, int32(2), requests.Load())
}

func TestClient_RetriesExhausted(t *testing.T) {
	var requests atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	records, failed, err := c.Predict(context.Background(),
		[]string{"SLYNTVATL", "LLFGYPVYV"},
		[]string{"HLA-A*02:01"},
		[]Method{MethodNetMHCpanEL},
		fastOptions())

	require.NoError(t, err, "retry exhaustion must not raise out of the batch call")
	assert.Empty(t, records)
	require.Len(t, failed, 2)
	for _, f := range failed {
		assert.True(t, strings.HasPrefix(f.Reason, "network:"), "reason %q", f.Reason)
	}
	assert.Equal(t, int32(maxAttempts), requests.Load())
}

func TestClient_ServiceErrorNotRetried(t *testing.T) {
	var requests atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, "Allele HLA-A*99:99 is not available for this method")
	})

	records, failed, err := c.Predict(context.Background(),
		[]string{"SLYNTVATL"},
		[]string{"HLA-A*99:99"},
		[]Method{MethodNetMHCpanEL},
		fastOptions())

	require.NoError(t, err)
	assert.Empty(t, records)
	require.Len(t, failed, 1)
	assert.True(t, strings.HasPrefix(failed[0].Reason, "service:"), "reason %q", failed[0].Reason)
	assert.Equal(t, int32(1), requests.Load(), "service errors are not retried")
}

func TestClient_UnscorableRowBecomesFailedEntry(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "allele\tpeptide\tscore\tpercentile_rank\n"+
			"HLA-A*02:01\tSLYNTVATL\t0.97\t0.05\n"+
			"HLA-A*02:01\tLLFGYPVYV\t-\t-\n")
	})

	records, failed, err := c.Predict(context.Background(),
		[]string{"SLYNTVATL", "LLFGYPVYV"},
		[]string{"HLA-A*02:01"},
		[]Method{MethodNetMHCpanEL},
		fastOptions())

	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Len(t, failed, 1)
	assert.Equal(t, "LLFGYPVYV", failed[0].Peptide)
}

func TestClient_MissingRowBecomesFailedEntry(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, elBody("SLYNTVATL"))
	})

	records, failed, err := c.Predict(context.Background(),
		[]string{"SLYNTVATL", "LLFGYPVYV"},
		[]string{"HLA-A*02:01"},
		[]Method{MethodNetMHCpanEL},
		fastOptions())

	require.NoError(t, err)
	assert.Len(t, records, 1)
	require.Len(t, failed, 1)
	assert.Equal(t, "LLFGYPVYV", failed[0].Peptide)
	assert.Contains(t, failed[0].Reason, "no result row")
}

func TestClient_CancellationReturnsPartialResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	firstDone := make(chan struct{})
	var requests atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			require.NoError(t, r.ParseForm())
			peptides := strings.Split(r.Form.Get("sequence_text"), "\n")
			fmt.Fprint(w, elBody(peptides...))
			close(firstDone)
			return
		}
		t.Error("no request should be issued after cancellation")
	})

	// Cancel between the first batch and the next paced request.
	go func() {
		<-firstDone
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	opts := fastOptions()
	opts.BatchSize = 1
	opts.Delay = 500 * time.Millisecond
	records, _, err := c.Predict(ctx,
		[]string{"SLYNTVATL", "LLFGYPVYV", "GILGFVFTL"},
		[]string{"HLA-A*02:01"},
		[]Method{MethodNetMHCpanEL},
		opts)

	require.NoError(t, err)
	assert.Len(t, records, 1, "results produced before cancellation are returned")
}

func TestClient_ParallelWorkers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		allele := r.Form.Get("allele")
		peptides := strings.Split(r.Form.Get("sequence_text"), "\n")
		var b strings.Builder
		b.WriteString("allele\tpeptide\tscore\tpercentile_rank\n")
		for _, p := range peptides {
			fmt.Fprintf(&b, "%s\t%s\t0.90\t0.5\n", allele, p)
		}
		fmt.Fprint(w, b.String())
	})

	opts := fastOptions()
	opts.Workers = 3
	records, failed, err := c.Predict(context.Background(),
		[]string{"SLYNTVATL", "LLFGYPVYV"},
		[]string{"HLA-A*02:01", "HLA-B*07:02", "HLA-A*01:01"},
		[]Method{MethodNetMHCpanEL},
		opts)

	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Len(t, records, 6)

	// Completion order is not guaranteed; correctness is keyed by
	// (peptide, allele).
	seen := make(map[string]bool)
	for _, r := range records {
		seen[r.Peptide+"/"+r.Allele] = true
	}
	assert.Len(t, seen, 6)
}

func TestRetryAfter(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	assert.Equal(t, time.Duration(0), retryAfter(resp))

	resp.Header.Set("Retry-After", "3")
	assert.Equal(t, 3*time.Second, retryAfter(resp))

	resp.Header.Set("Retry-After", "soon")
	assert.Equal(t, time.Duration(0), retryAfter(resp))
}

func TestClient_OptionValidation(t *testing.T) {
	c := NewClient()

	_, _, err := c.Predict(context.Background(),
		[]string{"SLYNTVATL"}, []string{"HLA-A*02:01"},
		[]Method{MethodNetMHCpanEL}, Options{BatchSize: -1})
	var cerr *peptide.ConfigurationError
	require.ErrorAs(t, err, &cerr)

	_, _, err = c.Predict(context.Background(),
		[]string{"SLYNTVATL"}, []string{"HLA-A*02:01"},
		[]Method{Method("bogus")}, fastOptions())
	require.ErrorAs(t, err, &cerr)

	_, _, err = c.Predict(context.Background(),
		[]string{"SLYNTVAT"}, []string{"HLA-A*02:01"},
		[]Method{MethodNetMHCpanEL}, fastOptions())
	var verr *peptide.ValidationError
	require.ErrorAs(t, err, &verr, "length mismatch must fail validation")
}
