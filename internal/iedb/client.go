package iedb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/epilab/pepscan/internal/peptide"
)

const (
	// DefaultBaseURL is the IEDB MHC-I tools API endpoint.
	DefaultBaseURL = "http://tools-cluster-interface.iedb.org/tools_api/mhci/"

	// DefaultBatchSize is the maximum number of peptides per request.
	DefaultBatchSize = 50

	// DefaultDelay is the minimum gap between consecutive requests.
	DefaultDelay = 1 * time.Second

	// DefaultLength is the peptide length sent to the service.
	DefaultLength = 9

	// maxWorkers caps concurrent in-flight requests regardless of options.
	maxWorkers = 5

	// maxAttempts is the per-batch attempt cap for transient failures.
	maxAttempts = 4

	// initialBackoff is the first retry delay; it doubles per attempt and
	// is overridden by a 429 Retry-After hint when present.
	initialBackoff = 2 * time.Second
)

// Client talks to the IEDB MHC-I prediction service. The zero-value defaults
// suit production use; tests point BaseURL at a stub server.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *zap.Logger
	backoff time.Duration
}

// NewClient creates a client for the public IEDB endpoint.
func NewClient() *Client {
	return &Client{
		baseURL: DefaultBaseURL,
		httpc: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:  zap.NewNop(),
		backoff: initialBackoff,
	}
}

// SetBaseURL overrides the service endpoint (used by tests).
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// SetLogger sets the logger for request and retry messages.
func (c *Client) SetLogger(l *zap.Logger) {
	c.logger = l
}

// Options control batching, pacing, and concurrency for a Predict call.
type Options struct {
	BatchSize int           // peptides per request; default DefaultBatchSize
	Delay     time.Duration // minimum gap between requests; default DefaultDelay
	Workers   int           // concurrent requests; default 1, capped at 5
	Length    int           // peptide length sent to the service; default DefaultLength
}

func (o Options) withDefaults() (Options, error) {
	if o.BatchSize < 0 {
		return o, &peptide.ConfigurationError{Message: "batch size must be positive"}
	}
	if o.BatchSize == 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Delay < 0 {
		return o, &peptide.ConfigurationError{Message: "inter-request delay must not be negative"}
	}
	if o.Delay == 0 {
		o.Delay = DefaultDelay
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Workers > maxWorkers {
		o.Workers = maxWorkers
	}
	if o.Length == 0 {
		o.Length = DefaultLength
	}
	return o, nil
}

// job is one (method, allele, batch) request unit.
type job struct {
	method   Method
	allele   string
	peptides []string
}

// Predict submits every (batch, allele, method) combination to the service
// and returns the normalized records alongside per-peptide failures.
//
// Transient failures are retried with exponential backoff; exhausting
// retries converts the batch into FailedEntries and the run continues.
// Cancelling ctx stops issuing new requests promptly but returns everything
// already produced.
func (c *Client) Predict(ctx context.Context, peptides []string, alleles []string, methods []Method, opts Options) ([]BindingRecord, []FailedEntry, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, nil, err
	}

	if len(peptides) == 0 {
		return nil, nil, nil
	}
	if len(alleles) == 0 {
		return nil, nil, &peptide.ValidationError{Message: "no alleles given"}
	}
	for _, m := range methods {
		if !m.IsValid() {
			return nil, nil, &peptide.ConfigurationError{Message: "unknown prediction method " + string(m)}
		}
	}

	seqs := make([]string, len(peptides))
	for i, p := range peptides {
		p = strings.ToUpper(strings.TrimSpace(p))
		if err := peptide.ValidateLength(p, opts.Length); err != nil {
			return nil, nil, err
		}
		seqs[i] = p
	}

	normAlleles := make([]string, len(alleles))
	for i, a := range alleles {
		a = peptide.NormalizeAllele(a)
		if a == "" {
			return nil, nil, &peptide.ValidationError{Message: "empty allele"}
		}
		normAlleles[i] = a
	}

	var jobs []job
	for _, m := range methods {
		for _, a := range normAlleles {
			for start := 0; start < len(seqs); start += opts.BatchSize {
				end := min(start+opts.BatchSize, len(seqs))
				jobs = append(jobs, job{method: m, allele: a, peptides: seqs[start:end]})
			}
		}
	}

	limiter := rate.NewLimiter(rate.Every(opts.Delay), 1)

	if opts.Workers == 1 {
		var records []BindingRecord
		var failed []FailedEntry
		for _, j := range jobs {
			if ctx.Err() != nil {
				break
			}
			if err := limiter.Wait(ctx); err != nil {
				break
			}
			recs, fails := c.runJob(ctx, j, opts)
			records = append(records, recs...)
			failed = append(failed, fails...)
		}
		return records, failed, nil
	}

	// Bounded worker pool; the shared collector is the only state crossing
	// worker boundaries.
	jobCh := make(chan job)
	var mu sync.Mutex
	var records []BindingRecord
	var failed []FailedEntry

	var wg sync.WaitGroup
	wg.Add(opts.Workers)
	for range opts.Workers {
		go func() {
			defer wg.Done()
			for j := range jobCh {
				if err := limiter.Wait(ctx); err != nil {
					continue
				}
				recs, fails := c.runJob(ctx, j, opts)
				mu.Lock()
				records = append(records, recs...)
				failed = append(failed, fails...)
				mu.Unlock()
			}
		}()
	}

	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		jobCh <- j
	}
	close(jobCh)
	wg.Wait()

	return records, failed, nil
}

// runJob issues one request and joins the response rows back to the input
// peptides by sequence value. The service may reorder rows or split
// sequences into windows, so row order is never trusted.
func (c *Client) runJob(ctx context.Context, j job, opts Options) ([]BindingRecord, []FailedEntry) {
	rows, err := c.request(ctx, j, opts.Length)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}

		prefix := "network: "
		var svcErr *ServiceError
		if errors.As(err, &svcErr) {
			prefix = "service: "
		}
		c.logger.Warn("prediction batch failed",
			zap.String("allele", j.allele),
			zap.String("method", string(j.method)),
			zap.Int("peptides", len(j.peptides)),
			zap.Error(err))

		failed := make([]FailedEntry, 0, len(j.peptides))
		for _, p := range j.peptides {
			failed = append(failed, FailedEntry{Peptide: p, Allele: j.allele, Reason: prefix + err.Error()})
		}
		return nil, failed
	}

	byPeptide := make(map[string]row, len(rows))
	for _, r := range rows {
		if _, seen := byPeptide[r.peptide]; !seen {
			byPeptide[r.peptide] = r
		}
	}

	var records []BindingRecord
	var failed []FailedEntry
	for _, p := range j.peptides {
		r, ok := byPeptide[p]
		switch {
		case !ok:
			failed = append(failed, FailedEntry{Peptide: p, Allele: j.allele, Reason: "service: no result row for peptide"})
		case r.err != "":
			failed = append(failed, FailedEntry{Peptide: p, Allele: j.allele, Reason: r.err})
		default:
			records = append(records, r.record)
		}
	}
	return records, failed
}

// request performs one service call with retries. Transport errors,
// timeouts, 5xx, and 429 responses are retried with exponential backoff up
// to maxAttempts; a 429 Retry-After hint overrides the delay for that retry.
// Application-level errors are returned as ServiceError without retrying.
func (c *Client) request(ctx context.Context, j job, length int) ([]row, error) {
	form := url.Values{
		"method":        {string(j.method)},
		"sequence_text": {strings.Join(j.peptides, "\n")},
		"allele":        {j.allele},
		"length":        {strconv.Itoa(length)},
	}
	payload := form.Encode()

	var lastErr error
	wait := c.backoff

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying prediction request",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.String("allele", j.allele))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read response: %w", readErr)
			continue
		}

		if retryableStatus(resp.StatusCode) {
			lastErr = fmt.Errorf("HTTP %d from prediction service", resp.StatusCode)
			if resp.StatusCode == http.StatusTooManyRequests {
				if d := retryAfter(resp); d > 0 {
					wait = d
				}
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return nil, &ServiceError{Status: resp.StatusCode, Message: truncate(string(body))}
		}

		return parseResponse(j.method, j.allele, string(body))
	}

	return nil, fmt.Errorf("retries exhausted: %w", lastErr)
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
