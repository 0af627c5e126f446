// Package fetcher queries the NOMIS statistical API for one dataset and geography,
// retrying transient failures on a bounded backoff schedule.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"

	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/types"
)

const (
	DefaultBaseURL = "https://www.nomisweb.co.uk/api/v01"

	maxBodyBytes = 32 << 20
	snippetBytes = 500
)

var errEmptyBody = errors.New("empty response body")

// RawResponse is an undecoded provider payload.
type RawResponse struct {
	Dataset    string
	Geography  types.GeographyCode
	URL        string
	StatusCode int
	Body       []byte
}

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Fetcher struct {
	baseURL string
	client  Doer
	backoff Backoff
	clock   clockwork.Clock
	logger  *slog.Logger
}

type Option func(*Fetcher)

func WithClient(c Doer) Option { return func(f *Fetcher) { f.client = c } }

func WithBackoff(b Backoff) Option { return func(f *Fetcher) { f.backoff = b } }

func WithClock(c clockwork.Clock) Option { return func(f *Fetcher) { f.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(f *Fetcher) { f.logger = l } }

func New(baseURL string, opts ...Option) (*Fetcher, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("fetcher base url %q: %w", baseURL, err)
	}
	f := &Fetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		backoff: DefaultBackoff(),
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if err := f.backoff.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// URL builds the request URL for a dataset and geography.
func (f *Fetcher) URL(ds types.DatasetSpec, code types.GeographyCode) (string, error) {
	u, err := url.JoinPath(f.baseURL, "dataset", ds.RemoteID+".jsonstat.json")
	if err != nil {
		return "", fmt.Errorf("build url: %w", err)
	}
	q := url.Values{}
	q.Set("geography", string(code))
	q.Set("date", "latest")
	measures := make([]string, len(ds.Measures))
	for i, m := range ds.Measures {
		measures[i] = string(m)
	}
	q.Set("measures", strings.Join(measures, ","))
	for k, v := range ds.Params {
		q.Set(k, v)
	}
	return u + "?" + q.Encode(), nil
}

// Fetch returns the first successful response. TransientErrors are retried up to
// MaxAttempts; any other error is returned immediately. Exhaustion yields *FetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, ds types.DatasetSpec, code types.GeographyCode) (RawResponse, error) {
	if code == "" {
		return RawResponse{}, &PermanentError{Err: errors.New("empty geography code")}
	}
	u, err := f.URL(ds, code)
	if err != nil {
		return RawResponse{}, &PermanentError{Err: err}
	}

	var last *TransientError
	for attempt := 1; attempt <= f.backoff.MaxAttempts; attempt++ {
		raw, err := f.once(ctx, u)
		if err == nil {
			if attempt > 1 {
				f.logger.Info("nomis fetch recovered", "dataset", ds.ID, "geography", code, "attempt", attempt)
			}
			raw.Dataset = ds.ID
			raw.Geography = code
			return raw, nil
		}

		var te *TransientError
		if !errors.As(err, &te) {
			return RawResponse{}, err
		}
		last = te
		if attempt == f.backoff.MaxAttempts {
			break
		}

		delay := f.backoff.Delay(attempt - 1)
		f.logger.Warn("nomis fetch transient failure, retrying",
			"dataset", ds.ID,
			"geography", code,
			"status", te.StatusCode,
			"attempt", attempt,
			"max_attempts", f.backoff.MaxAttempts,
			"delay", delay,
		)
		if err := f.wait(ctx, delay); err != nil {
			return RawResponse{}, err
		}
	}

	return RawResponse{}, &FetchFailed{
		Attempts:   f.backoff.MaxAttempts,
		LastStatus: last.StatusCode,
		Last:       last,
	}
}

func (f *Fetcher) once(ctx context.Context, u string) (RawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return RawResponse{}, &PermanentError{URL: u, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return RawResponse{}, ctxErr
		}
		return RawResponse{}, &TransientError{URL: u, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.logger.Debug("close nomis response body", "error", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return RawResponse{}, ctxErr
		}
		return RawResponse{}, &TransientError{StatusCode: resp.StatusCode, URL: u, Err: err}
	}

	if isTransientStatus(resp.StatusCode) {
		return RawResponse{}, &TransientError{StatusCode: resp.StatusCode, URL: u}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return RawResponse{}, &PermanentError{StatusCode: resp.StatusCode, URL: u, Snippet: snippet(body)}
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return RawResponse{}, &PermanentError{StatusCode: resp.StatusCode, URL: u, Err: errEmptyBody}
	}

	return RawResponse{URL: u, StatusCode: resp.StatusCode, Body: body}, nil
}

func (f *Fetcher) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.clock.After(d):
		return nil
	}
}

// snippet keeps at most snippetBytes of body, cut on a rune boundary.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= snippetBytes {
		return s
	}
	n := snippetBytes
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
