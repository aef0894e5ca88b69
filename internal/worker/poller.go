package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// poller queries a worker's local stats endpoint on a fixed interval and
// publishes normalized payloads onto the supervisor's stats stream.
//
// Transport and parse failures are logged and retried on the next tick;
// a transient error must never halt polling.
type poller struct {
	port     int
	interval time.Duration
	client   *http.Client
	out      chan StatsPayload
}

func newPoller(port int, interval time.Duration, out chan StatsPayload) *poller {
	return &poller{
		port:     port,
		interval: interval,
		client:   &http.Client{Timeout: interval},
		out:      out,
	}
}

// run polls until ctx is cancelled. Cancellation is the normal exit path.
func (p *poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *poller) poll(ctx context.Context) {
	url := fmt.Sprintf("http://127.0.0.1:%d/stats/requests", p.port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Printf("stats poll: %v", err)
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		log.Printf("stats poll: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("stats poll: unexpected status %d", resp.StatusCode)
		return
	}

	var body statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Printf("stats poll: decode failed: %v", err)
		return
	}

	// No aggregate row yet means the worker is still warming up.
	total := body.aggregated()
	if total == nil {
		return
	}

	p.publish(StatsPayload{
		UserCount:       body.UserCount,
		TotalRPS:        total.CurrentRPS,
		FailRatio:       failRatio(total.NumFailures, total.NumRequests),
		AvgResponseTime: total.AvgResponseTime,
	})
}

// publish pushes a payload onto the stream without ever blocking the poll
// loop. When the buffer is full the oldest sample is dropped; consumers
// care about the freshest value, not complete history.
func (p *poller) publish(payload StatsPayload) {
	select {
	case p.out <- payload:
		return
	default:
	}

	select {
	case <-p.out:
	default:
	}
	select {
	case p.out <- payload:
	default:
	}
}
