package dto

import (
	"time"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// StudentReport is the derived view of one student.
type StudentReport struct {
	StudentID           string                 `json:"student_id"`
	Name                string                 `json:"name"`
	Averages            models.StudentAverages `json:"averages"`
	Band                *models.GradeBand      `json:"band"`
	StartingOverallMark *float64               `json:"starting_overall_mark,omitempty"`
}

// ClassReport lists the reports of every student in a class.
type ClassReport struct {
	ClassID     string          `json:"class_id"`
	ClassName   string          `json:"class_name"`
	Students    []StudentReport `json:"students"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// ClassStatsResponse wraps the class statistics. Stats is null for a class
// without students.
type ClassStatsResponse struct {
	ClassID      string             `json:"class_id"`
	StudentCount int                `json:"student_count"`
	Stats        *models.ClassStats `json:"stats"`
	GeneratedAt  time.Time          `json:"generated_at"`
}

// RecordGradesResponse returns the stored student with freshly computed marks.
type RecordGradesResponse struct {
	Student  models.Student         `json:"student"`
	Averages models.StudentAverages `json:"averages"`
	Band     *models.GradeBand      `json:"band"`
	Flags    []models.ScoreFlag     `json:"flags"`
}

// WeightValidationResponse reports whether proposed unit weights are acceptable.
type WeightValidationResponse struct {
	Valid bool    `json:"valid"`
	Total float64 `json:"total"`
}

// MetricsSnapshot summarises runtime counters for diagnostics.
type MetricsSnapshot struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	Computations             uint64    `json:"computations"`
	RejectedWeightProposals  uint64    `json:"rejected_weight_proposals"`
	WarmupBacklog            int       `json:"warmup_backlog"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
