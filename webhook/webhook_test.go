package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/appraise/session"
)

func TestDeliverSigns(t *testing.T) {
	var gotSig, gotType string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotType = r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	ev := &Event{Type: EventRunCompleted, RunID: "r1", Timestamp: 1700000000, Data: CompletedData{Status: "completed", Total: 2, Records: 2}}
	if err := Deliver(context.Background(), srv.URL, "s3cret", ev); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if gotType != "application/json" {
		t.Errorf("content type = %q", gotType)
	}
	if want := Sign("s3cret", body); gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}

	var decoded Event
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.Type != EventRunCompleted || decoded.RunID != "r1" {
		t.Errorf("body = %s (%v)", body, err)
	}
}

func TestDeliverUnsignedWithoutSecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(SignatureHeader) != "" {
			t.Error("unexpected signature header")
		}
	}))
	defer srv.Close()

	if err := Deliver(context.Background(), srv.URL, "", &Event{Type: EventRunCompleted}); err != nil {
		t.Fatal(err)
	}
}

func TestDeliverErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := Deliver(context.Background(), srv.URL, "", &Event{Type: EventRunCompleted}); err == nil {
		t.Error("expected an error for a 502 response")
	}
}

func TestNotifierRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	n := &Notifier{URL: srv.URL, Delays: []time.Duration{0, time.Millisecond, time.Millisecond}}
	done := make(chan error, 1)
	n.Send(&Event{Type: EventRunCompleted}, func(err error) { done <- err })

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("final error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("delivery did not finish")
	}
	if calls.Load() != 3 {
		t.Errorf("attempts = %d, want 3", calls.Load())
	}
}

func TestOperatorPostsBlocked(t *testing.T) {
	got := make(chan Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev Event
		_ = json.NewDecoder(r.Body).Decode(&ev)
		got <- ev
	}))
	defer srv.Close()

	n := &Notifier{URL: srv.URL, Delays: []time.Duration{0}}
	var op session.Operator = n.Operator("run-7")
	op.Notify(context.Background(), session.Intervention{
		URL:    "https://www.avito.ru/a_1",
		Site:   "avito",
		Reason: session.ReasonBlocked,
		Since:  time.Now(),
		Gate:   session.NewGate(),
	})

	select {
	case ev := <-got:
		if ev.Type != EventSessionBlocked || ev.RunID != "run-7" || ev.Timestamp == 0 {
			t.Errorf("event = %+v", ev)
		}
		data, _ := ev.Data.(map[string]any)
		if data["url"] != "https://www.avito.ru/a_1" || data["reason"] != "blocked" {
			t.Errorf("data = %v", ev.Data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event delivered")
	}
}
