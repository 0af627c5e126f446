package httpapi

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hbl-templ/bakerloo-line-extension/internal/config"
)

type fakeBroker struct {
	enabled   bool
	connected bool
}

func (f fakeBroker) Enabled() bool     { return f.enabled }
func (f fakeBroker) IsConnected() bool { return f.connected }

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestServer(t *testing.T, db *sql.DB, broker BrokerStatus) *httptest.Server {
	t.Helper()

	srv := NewServer(config.Config{HTTPAddr: ":0"}, NewMux(db, broker))
	ts := httptest.NewServer(srv.Handler)

	t.Cleanup(ts.Close)
	return ts
}

func mustGetJSON[T any](t *testing.T, client *http.Client, url string, out *T) *http.Response {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name   string
		broker BrokerStatus
		want   string
	}{
		{"no broker", nil, "disabled"},
		{"broker disabled", fakeBroker{}, "disabled"},
		{"broker connected", fakeBroker{enabled: true, connected: true}, "connected"},
		{"broker down", fakeBroker{enabled: true}, "disconnected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, openDB(t), tt.broker)

			var body healthResponse
			resp := mustGetJSON(t, ts.Client(), ts.URL+"/healthz", &body)

			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
			}
			if body.Status != "ok" || body.MQTT != tt.want {
				t.Fatalf("body=%+v want status ok, mqtt %q", body, tt.want)
			}
		})
	}
}

func TestHealthz_DatabaseClosed(t *testing.T) {
	db := openDB(t)
	ts := newTestServer(t, db, nil)
	_ = db.Close()

	var body map[string]any
	resp := mustGetJSON(t, ts.Client(), ts.URL+"/healthz", &body)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusInternalServerError)
	}
	if _, ok := body["message"]; !ok {
		t.Fatalf("expected message field, got %v", body)
	}
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t, openDB(t), nil)

	t.Run("assigns a uuid", func(t *testing.T) {
		resp, err := ts.Client().Get(ts.URL + "/healthz")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if _, err := uuid.Parse(resp.Header.Get(RequestIDHeader)); err != nil {
			t.Fatalf("%s=%q is not a uuid: %v", RequestIDHeader, resp.Header.Get(RequestIDHeader), err)
		}
	})

	t.Run("keeps caller id", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set(RequestIDHeader, "abc-123")
		resp, err := ts.Client().Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if got := resp.Header.Get(RequestIDHeader); got != "abc-123" {
			t.Fatalf("%s=%q want=%q", RequestIDHeader, got, "abc-123")
		}
	})
}

func TestRouting(t *testing.T) {
	ts := newTestServer(t, openDB(t), nil)

	resp, err := ts.Client().Get(ts.URL + "/does-not-exist")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusNotFound)
	}

	resp, err = ts.Client().Post(ts.URL+"/healthz", "text/plain", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

func TestStatusRecorder(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}
	sr.WriteHeader(http.StatusTeapot)
	if sr.status != http.StatusTeapot || rec.Code != http.StatusTeapot {
		t.Fatalf("status=%d recorder=%d want=%d", sr.status, rec.Code, http.StatusTeapot)
	}
}
