package messaging

import "time"

// AnalysisCompletedMessage announces a freshly computed (not cached) analysis
type AnalysisCompletedMessage struct {
	EventID     string    `json:"event_id"`
	Fingerprint string    `json:"fingerprint"`
	Tickers     []string  `json:"tickers"`
	Weights     []float64 `json:"weights"` // percent
	Benchmark   string    `json:"benchmark_ticker"`
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date"`
	DurationMS  int64     `json:"duration_ms"`
	Timestamp   time.Time `json:"timestamp"`
}

// CacheInvalidationMessage asks every instance to drop cached results,
// either one fingerprint or everything when All is set
type CacheInvalidationMessage struct {
	EventID     string    `json:"event_id"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	All         bool      `json:"all,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
