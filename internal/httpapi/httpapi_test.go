package httpapi

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"indexfeed-trader/internal/eventbus"
	"indexfeed-trader/internal/hub"
)

type fakeStatus struct{}

func (fakeStatus) Status() hub.Status { return hub.Status{} }

type fakeFeedStatus struct{ connected bool }

func (f fakeFeedStatus) Connected() bool { return f.connected }

type fakeDBPing struct{ err error }

func (f fakeDBPing) Ping() error { return f.err }

func TestServeHealthzOKWhenFeedAndDBAreUp(t *testing.T) {
	bus := eventbus.New(4)
	defer bus.Close()
	h := hub.New(bus, fakeStatus{}, zerolog.Nop())

	srv := New(h, fakeFeedStatus{connected: true}, fakeDBPing{}, zerolog.Nop())

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !resp.FeedConnected || !resp.DBOK {
		t.Fatalf("unexpected health response: %+v", resp)
	}
}

func TestServeHealthzReturns503WhenFeedIsDown(t *testing.T) {
	bus := eventbus.New(4)
	defer bus.Close()
	h := hub.New(bus, fakeStatus{}, zerolog.Nop())

	srv := New(h, fakeFeedStatus{connected: false}, fakeDBPing{}, zerolog.Nop())

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != 503 {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestServeHealthzReturns503WhenDBIsDown(t *testing.T) {
	bus := eventbus.New(4)
	defer bus.Close()
	h := hub.New(bus, fakeStatus{}, zerolog.Nop())

	srv := New(h, fakeFeedStatus{connected: true}, fakeDBPing{err: errors.New("disk full")}, zerolog.Nop())

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != 503 {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
