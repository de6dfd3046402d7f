package models

import "time"

// MetricsSnapshot is a point-in-time summary of process instrumentation.
type MetricsSnapshot struct {
	CacheHitRatio              float64   `json:"cache_hit_ratio"`
	CacheHits                  uint64    `json:"cache_hits"`
	CacheMisses                uint64    `json:"cache_misses"`
	RequestsTotal              uint64    `json:"requests_total"`
	AverageRequestDurationMs   float64   `json:"average_request_duration_ms"`
	StatisticsComputed         uint64    `json:"statistics_computed"`
	AverageStatisticDurationMs float64   `json:"average_statistic_duration_ms"`
	GradesRecorded             uint64    `json:"grades_recorded"`
	GradeSheetsExported        uint64    `json:"grade_sheets_exported"`
	SummariesWarmed            uint64    `json:"summaries_warmed"`
	Goroutines                 int       `json:"goroutines"`
	GeneratedAt                time.Time `json:"generated_at"`
}
