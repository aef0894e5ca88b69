package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"
)

// fakeStatsServer serves the worker's stats endpoint shape on loopback and
// returns the bound port.
func fakeStatsServer(t *testing.T, body string) (int, func()) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/stats/requests", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})

	server := httptest.NewServer(mux)
	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("failed to parse server url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("failed to parse server port: %v", err)
	}
	return port, server.Close
}

func TestPollerPublishesAggregate(t *testing.T) {
	port, cleanup := fakeStatsServer(t, `{
		"user_count": 5,
		"stats": [
			{"name": "/api", "num_requests": 4, "num_failures": 0, "current_rps": 1.0, "avg_response_time": 10},
			{"name": "Aggregated", "num_requests": 10, "num_failures": 3, "current_rps": 2.5, "avg_response_time": 42.5}
		]
	}`)
	defer cleanup()

	out := make(chan StatsPayload, 4)
	p := newPoller(port, 10*time.Millisecond, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.run(ctx)

	select {
	case payload := <-out:
		if payload.UserCount != 5 {
			t.Errorf("expected user_count 5, got %d", payload.UserCount)
		}
		if payload.TotalRPS != 2.5 {
			t.Errorf("expected rps 2.5, got %v", payload.TotalRPS)
		}
		if payload.FailRatio != 30.0 {
			t.Errorf("expected fail ratio 30, got %v", payload.FailRatio)
		}
		if payload.AvgResponseTime != 42.5 {
			t.Errorf("expected avg response time 42.5, got %v", payload.AvgResponseTime)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for stats payload")
	}
}

func TestPollerSkipsTickWithoutAggregate(t *testing.T) {
	port, cleanup := fakeStatsServer(t, `{"user_count": 1, "stats": [{"name": "/api"}]}`)
	defer cleanup()

	out := make(chan StatsPayload, 4)
	p := newPoller(port, 10*time.Millisecond, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.run(ctx)

	select {
	case payload := <-out:
		t.Fatalf("expected no payload without aggregate row, got %+v", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPollerSurvivesUnreachableEndpoint(t *testing.T) {
	// Nothing listens on this port; every tick fails and polling continues.
	out := make(chan StatsPayload, 4)
	p := newPoller(1, 10*time.Millisecond, out)

	ctx, cancel := context.WithCancel(context.Background())
	go p.run(ctx)

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case payload, ok := <-out:
		if ok {
			t.Fatalf("expected no payload from unreachable endpoint, got %+v", payload)
		}
	default:
	}
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	out := make(chan StatsPayload, 1)
	p := &poller{out: out}

	p.publish(StatsPayload{UserCount: 1})
	p.publish(StatsPayload{UserCount: 2})

	payload := <-out
	if payload.UserCount != 2 {
		t.Errorf("expected freshest payload to survive, got user_count %d", payload.UserCount)
	}
}
