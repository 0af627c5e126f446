package fetcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"

	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/types"
)

var testDataset = types.DatasetSpec{
	ID:         "gender",
	RemoteID:   "NM_2023_1",
	Measures:   []types.Measure{types.MeasureCount, types.MeasurePercent},
	Params:     map[string]string{"c_sex": "0...2"},
	HasTotal:   true,
	Categories: []string{"Female", "Male"},
}

type stubResponse struct {
	status int
	body   string
	err    error
}

// stubDoer replays responses in order and repeats the last one.
type stubDoer struct {
	mu        sync.Mutex
	responses []stubResponse
	calls     int
	urls      []string
}

func (s *stubDoer) Do(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.calls++
	s.urls = append(s.urls, req.URL.String())
	r := s.responses[i]
	if r.err != nil {
		return nil, r.err
	}
	return &http.Response{
		StatusCode: r.status,
		Body:       io.NopCloser(strings.NewReader(r.body)),
		Request:    req,
	}, nil
}

func (s *stubDoer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestFetcher(t *testing.T, doer Doer, clock clockwork.Clock, b Backoff) *Fetcher {
	t.Helper()
	f, err := New("http://nomis.test/api/v01",
		WithClient(doer),
		WithClock(clock),
		WithBackoff(b),
		WithLogger(slog.New(slog.DiscardHandler)),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return f
}

type fetchResult struct {
	raw RawResponse
	err error
}

// driveBackoff advances the fake clock through each delay once the fetcher is waiting.
func driveBackoff(t *testing.T, clock *clockwork.FakeClock, delays []time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i, d := range delays {
		if err := clock.BlockUntilContext(ctx, 1); err != nil {
			t.Fatalf("waiting for backoff %d: %v", i, err)
		}
		clock.Advance(d)
	}
}

func TestFetch_RetriesTransientThenSucceeds(t *testing.T) {
	doer := &stubDoer{responses: []stubResponse{
		{status: http.StatusServiceUnavailable},
		{status: http.StatusTooManyRequests},
		{status: http.StatusOK, body: `{"value":[1,2]}`},
	}}
	clock := clockwork.NewFakeClock()
	b := DefaultBackoff()
	f := newTestFetcher(t, doer, clock, b)

	start := clock.Now()
	done := make(chan fetchResult, 1)
	go func() {
		raw, err := f.Fetch(context.Background(), testDataset, "G1")
		done <- fetchResult{raw, err}
	}()

	driveBackoff(t, clock, []time.Duration{b.Delay(0), b.Delay(1)})

	res := <-done
	if res.err != nil {
		t.Fatalf("Fetch() error = %v", res.err)
	}
	if string(res.raw.Body) != `{"value":[1,2]}` {
		t.Errorf("body = %q", res.raw.Body)
	}
	if got := doer.callCount(); got != 3 {
		t.Errorf("attempts = %d; want 3", got)
	}
	if got, want := clock.Since(start), 3*time.Second; got != want {
		t.Errorf("total backoff = %v; want %v", got, want)
	}
}

func TestFetch_AlwaysTransientFailsAfterMaxAttempts(t *testing.T) {
	doer := &stubDoer{responses: []stubResponse{{status: http.StatusBadGateway}}}
	clock := clockwork.NewFakeClock()
	b := Backoff{MaxAttempts: 4, BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	f := newTestFetcher(t, doer, clock, b)

	done := make(chan fetchResult, 1)
	go func() {
		raw, err := f.Fetch(context.Background(), testDataset, "G1")
		done <- fetchResult{raw, err}
	}()

	driveBackoff(t, clock, b.Schedule())

	res := <-done
	var ff *FetchFailed
	if !errors.As(res.err, &ff) {
		t.Fatalf("Fetch() error = %v; want *FetchFailed", res.err)
	}
	if ff.Attempts != 4 {
		t.Errorf("Attempts = %d; want 4", ff.Attempts)
	}
	if ff.LastStatus != http.StatusBadGateway {
		t.Errorf("LastStatus = %d; want %d", ff.LastStatus, http.StatusBadGateway)
	}
	var te *TransientError
	if !errors.As(res.err, &te) {
		t.Errorf("FetchFailed does not unwrap to *TransientError")
	}
	if got := doer.callCount(); got != 4 {
		t.Errorf("attempts = %d; want 4", got)
	}
}

func TestFetch_PermanentErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		resp stubResponse
	}{
		{name: "bad request", resp: stubResponse{status: http.StatusBadRequest, body: "bad geography"}},
		{name: "not found", resp: stubResponse{status: http.StatusNotFound}},
		{name: "forbidden", resp: stubResponse{status: http.StatusForbidden}},
		{name: "empty body", resp: stubResponse{status: http.StatusOK, body: "  \n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &stubDoer{responses: []stubResponse{tt.resp}}
			f := newTestFetcher(t, doer, clockwork.NewFakeClock(), DefaultBackoff())

			_, err := f.Fetch(context.Background(), testDataset, "G1")
			var pe *PermanentError
			if !errors.As(err, &pe) {
				t.Fatalf("Fetch() error = %v; want *PermanentError", err)
			}
			if got := doer.callCount(); got != 1 {
				t.Errorf("attempts = %d; want 1", got)
			}
		})
	}
}

func TestFetch_PermanentErrorIncludesSnippet(t *testing.T) {
	doer := &stubDoer{responses: []stubResponse{{status: http.StatusBadRequest, body: "unknown dataset NM_0"}}}
	f := newTestFetcher(t, doer, clockwork.NewFakeClock(), DefaultBackoff())

	_, err := f.Fetch(context.Background(), testDataset, "G1")
	if err == nil || !strings.Contains(err.Error(), "unknown dataset NM_0") {
		t.Fatalf("Fetch() error = %v; want snippet in message", err)
	}
}

func Test_snippet(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"short", "  bad request \n", "bad request"},
		{"exact", strings.Repeat("a", snippetBytes), strings.Repeat("a", snippetBytes)},
		{"ascii cut", strings.Repeat("a", snippetBytes+10), strings.Repeat("a", snippetBytes)},
		// "é" is two bytes; the cut would land inside the last one.
		{"rune straddles cut", strings.Repeat("a", snippetBytes-1) + "éz", strings.Repeat("a", snippetBytes-1)},
		// "€" is three bytes starting one before the cut.
		{"three byte rune", strings.Repeat("a", snippetBytes-2) + "€€", strings.Repeat("a", snippetBytes-2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := snippet([]byte(tt.body))
			if got != tt.want {
				t.Errorf("snippet() = %q (%d bytes); want %d bytes", got, len(got), len(tt.want))
			}
			if !utf8.ValidString(got) {
				t.Errorf("snippet() = %q is not valid UTF-8", got)
			}
			if len(got) > snippetBytes {
				t.Errorf("len(snippet()) = %d; want <= %d", len(got), snippetBytes)
			}
		})
	}
}

func TestFetch_TransportErrorIsTransient(t *testing.T) {
	doer := &stubDoer{responses: []stubResponse{{err: errors.New("connection reset")}}}
	f := newTestFetcher(t, doer, clockwork.NewFakeClock(), Backoff{MaxAttempts: 2})

	_, err := f.Fetch(context.Background(), testDataset, "G1")
	var ff *FetchFailed
	if !errors.As(err, &ff) {
		t.Fatalf("Fetch() error = %v; want *FetchFailed", err)
	}
	if ff.LastStatus != 0 {
		t.Errorf("LastStatus = %d; want 0", ff.LastStatus)
	}
	if got := doer.callCount(); got != 2 {
		t.Errorf("attempts = %d; want 2", got)
	}
}

func TestFetch_EmptyGeographyCode(t *testing.T) {
	doer := &stubDoer{responses: []stubResponse{{status: http.StatusOK, body: "{}"}}}
	f := newTestFetcher(t, doer, clockwork.NewFakeClock(), DefaultBackoff())

	_, err := f.Fetch(context.Background(), testDataset, "")
	var pe *PermanentError
	if !errors.As(err, &pe) {
		t.Fatalf("Fetch() error = %v; want *PermanentError", err)
	}
	if doer.callCount() != 0 {
		t.Errorf("expected no request for an empty code")
	}
}

func TestFetch_ContextCanceledDuringBackoff(t *testing.T) {
	doer := &stubDoer{responses: []stubResponse{{status: http.StatusServiceUnavailable}}}
	clock := clockwork.NewFakeClock()
	f := newTestFetcher(t, doer, clock, DefaultBackoff())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan fetchResult, 1)
	go func() {
		raw, err := f.Fetch(ctx, testDataset, "G1")
		done <- fetchResult{raw, err}
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("waiting for backoff: %v", err)
	}
	cancel()

	res := <-done
	if !errors.Is(res.err, context.Canceled) {
		t.Fatalf("Fetch() error = %v; want context.Canceled", res.err)
	}
	if got := doer.callCount(); got != 1 {
		t.Errorf("attempts = %d; want 1", got)
	}
}

func TestURL(t *testing.T) {
	f := newTestFetcher(t, &stubDoer{}, clockwork.NewFakeClock(), DefaultBackoff())

	raw, err := f.URL(testDataset, "1778385187")
	if err != nil {
		t.Fatalf("URL() error = %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	if u.Path != "/api/v01/dataset/NM_2023_1.jsonstat.json" {
		t.Errorf("path = %q", u.Path)
	}
	q := u.Query()
	checks := map[string]string{
		"geography": "1778385187",
		"date":      "latest",
		"measures":  "20100,20301",
		"c_sex":     "0...2",
	}
	for k, want := range checks {
		if got := q.Get(k); got != want {
			t.Errorf("query %s = %q; want %q", k, got, want)
		}
	}
}

func TestFetch_AgainstHTTPServer(t *testing.T) {
	var gotPath, gotGeography string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotGeography = r.URL.Query().Get("geography")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"value":[10,50,10,50]}`)
	}))
	t.Cleanup(srv.Close)

	f, err := New(srv.URL+"/", WithClient(srv.Client()), WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	raw, err := f.Fetch(context.Background(), testDataset, "G2")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if raw.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", raw.StatusCode)
	}
	if gotPath != "/dataset/NM_2023_1.jsonstat.json" {
		t.Errorf("path = %q", gotPath)
	}
	if gotGeography != "G2" {
		t.Errorf("geography = %q", gotGeography)
	}
}

func TestNew_InvalidBackoff(t *testing.T) {
	_, err := New("", WithBackoff(Backoff{MaxAttempts: 0}))
	if err == nil {
		t.Fatal("New() error = nil; want error")
	}
}
