package mqtt

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hbl-templ/bakerloo-line-extension/internal/config"
)

func TestParseInvalidation(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		payload string
		want    Invalidation
		wantErr bool
	}{
		{name: "empty", payload: ""},
		{name: "whitespace", payload: " \n"},
		{name: "full", payload: `{"source":"blectl","reason":"deploy","at":"2026-05-01T12:00:00Z"}`,
			want: Invalidation{Source: "blectl", Reason: "deploy", At: at}},
		{name: "invalid", payload: `{`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInvalidation([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseInvalidation() error = %v; wantErr %v", err, tt.wantErr)
			}
			if got.Source != tt.want.Source || got.Reason != tt.want.Reason || !got.At.Equal(tt.want.At) {
				t.Errorf("ParseInvalidation() = %+v; want %+v", got, tt.want)
			}
		})
	}
}

func newTestSubscriber() *Subscriber {
	cfg := config.Config{MQTTBroker: "localhost", MQTTPort: 1883, MQTTClientID: "test", MQTTTopic: "ble/cache/invalidate"}
	return NewSubscriber(cfg, slog.New(slog.DiscardHandler))
}

func TestHandleMessage_CallsHandler(t *testing.T) {
	s := newTestSubscriber()
	var got []Invalidation
	s.SetMessageHandler(func(msg Invalidation) error {
		got = append(got, msg)
		return nil
	})

	s.handleMessage("ble/cache/invalidate", []byte(`{"source":"ops"}`))
	s.handleMessage("ble/cache/invalidate", nil)
	s.handleMessage("ble/cache/invalidate", []byte(`not json`))

	if len(got) != 2 {
		t.Fatalf("handler calls = %d; want 2", len(got))
	}
	if got[0].Source != "ops" {
		t.Errorf("first Source = %q; want ops", got[0].Source)
	}
}

func TestHandleMessage_HandlerErrorIsLogged(t *testing.T) {
	s := newTestSubscriber()
	calls := 0
	s.SetMessageHandler(func(Invalidation) error {
		calls++
		return errors.New("boom")
	})
	s.handleMessage("t", nil)
	if calls != 1 {
		t.Errorf("calls = %d; want 1", calls)
	}
}

func TestHandleMessage_NoHandler(t *testing.T) {
	s := newTestSubscriber()
	s.handleMessage("t", nil)
}

func TestEnabled(t *testing.T) {
	if !newTestSubscriber().Enabled() {
		t.Error("Enabled() = false with a broker")
	}
	s := NewSubscriber(config.Config{}, nil)
	if s.Enabled() {
		t.Error("Enabled() = true without a broker")
	}
}

func TestEncodeInvalidation(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return at }

	data, err := encodeInvalidation(Invalidation{Source: "blectl", Reason: "import crime"}, now)
	if err != nil {
		t.Fatalf("encodeInvalidation() error = %v", err)
	}
	got, err := ParseInvalidation(data)
	if err != nil {
		t.Fatalf("ParseInvalidation() error = %v", err)
	}
	if got.Source != "blectl" || got.Reason != "import crime" || !got.At.Equal(at) {
		t.Errorf("round trip = %+v", got)
	}

	earlier := at.Add(-time.Hour)
	data, err = encodeInvalidation(Invalidation{At: earlier}, now)
	if err != nil {
		t.Fatalf("encodeInvalidation() error = %v", err)
	}
	if got, _ := ParseInvalidation(data); !got.At.Equal(earlier) {
		t.Errorf("At = %v; want caller value %v", got.At, earlier)
	}
}

func TestPublisher_ConnectCanceled(t *testing.T) {
	cfg := config.Config{MQTTBroker: "127.0.0.1", MQTTPort: 1, MQTTTopic: "ble/cache/invalidate"}
	p := NewPublisher(cfg, "test-publisher", slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Connect(ctx); err == nil {
		t.Fatal("Connect() = nil; want error")
	}
}
