package worker

// aggregatedName is the reserved row name the worker uses for the totals
// entry in its stats report.
const aggregatedName = "Aggregated"

// StatsPayload is one normalized sample derived from the worker's raw
// aggregate counters. Samples are produced once per poll tick and never
// persisted.
type StatsPayload struct {
	UserCount       int     `json:"user_count"`
	TotalRPS        float64 `json:"total_rps"`
	FailRatio       float64 `json:"fail_ratio"`
	AvgResponseTime float64 `json:"total_avg_response_time"`
}

// statsResponse mirrors the worker's /stats/requests JSON body.
type statsResponse struct {
	UserCount int          `json:"user_count"`
	Stats     []statsEntry `json:"stats"`
}

type statsEntry struct {
	Name            string  `json:"name"`
	NumRequests     int64   `json:"num_requests"`
	NumFailures     int64   `json:"num_failures"`
	CurrentRPS      float64 `json:"current_rps"`
	AvgResponseTime float64 `json:"avg_response_time"`
}

// aggregated returns the totals row, or nil if the worker has not produced
// aggregate data yet.
func (r *statsResponse) aggregated() *statsEntry {
	for i := range r.Stats {
		if r.Stats[i].Name == aggregatedName {
			return &r.Stats[i]
		}
	}
	return nil
}

// failRatio converts raw counters into a failure percentage. A run with no
// requests yet has a ratio of zero, not a division error.
func failRatio(failures, requests int64) float64 {
	if requests <= 0 {
		return 0
	}
	return float64(failures) / float64(requests) * 100
}
