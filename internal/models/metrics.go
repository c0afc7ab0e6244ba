package models

import "time"

// SystemMetrics is a point-in-time snapshot of solver and HTTP instrumentation.
type SystemMetrics struct {
	SolveRuns                uint64    `json:"solve_runs"`
	AverageSolveDurationMs   float64   `json:"average_solve_duration_ms"`
	PlacedCourses            uint64    `json:"placed_courses"`
	FailedCourses            uint64    `json:"failed_courses"`
	AuditRuns                uint64    `json:"audit_runs"`
	BlockingViolations       uint64    `json:"blocking_violations"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
