package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/jobs"
)

// JobWarmClassStats is the job type that precomputes cached class statistics.
const JobWarmClassStats = "gradebook.warm_class_stats"

const statsCachePrefix = "gradebook:stats:"

func statsCachePattern(classID string) string {
	return statsCachePrefix + classID + ":*"
}

type rosterReader interface {
	ListByClass(ctx context.Context, classID string) ([]models.Student, error)
	FindByID(ctx context.Context, classID, id string) (*models.Student, error)
}

// GradebookService serves computed marks and class statistics.
type GradebookService struct {
	classes  classReader
	students rosterReader
	cache    *CacheService
	metrics  *MetricsService
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewGradebookService constructs the read side of the gradebook.
func NewGradebookService(classes classReader, students rosterReader, cache *CacheService, metrics *MetricsService, cacheTTL time.Duration, logger *zap.Logger) *GradebookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradebookService{
		classes:  classes,
		students: students,
		cache:    cache,
		metrics:  metrics,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StudentReport computes the marks and band of one student.
func (s *GradebookService) StudentReport(ctx context.Context, classID, studentID string) (*dto.StudentReport, error) {
	class, err := s.loadClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	student, err := s.students.FindByID(ctx, classID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	start := time.Now()
	report := studentReport(*student, *class)
	s.metrics.ObserveComputation(ComputationStudent, 1, time.Since(start))
	return &report, nil
}

// ClassReport computes every student's marks, ordered by name then ID.
func (s *GradebookService) ClassReport(ctx context.Context, classID string) (*dto.ClassReport, error) {
	snapshot, err := s.loadSnapshot(ctx, classID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	students := make([]models.Student, len(snapshot.Students))
	copy(students, snapshot.Students)
	sort.SliceStable(students, func(i, j int) bool {
		if students[i].Name != students[j].Name {
			return students[i].Name < students[j].Name
		}
		return students[i].ID < students[j].ID
	})
	reports := make([]dto.StudentReport, 0, len(students))
	for _, student := range students {
		reports = append(reports, studentReport(student, *snapshot))
	}
	s.metrics.ObserveComputation(ComputationClass, len(students), time.Since(start))

	return &dto.ClassReport{
		ClassID:     snapshot.ID,
		ClassName:   snapshot.Name,
		Students:    reports,
		GeneratedAt: s.now(),
	}, nil
}

// ClassStats returns the grade band distribution and category averages of a
// class. The boolean reports whether the result came from cache.
func (s *GradebookService) ClassStats(ctx context.Context, classID string) (*dto.ClassStatsResponse, bool, error) {
	snapshot, err := s.loadSnapshot(ctx, classID)
	if err != nil {
		return nil, false, err
	}

	key, keyErr := statsCacheKey(*snapshot)
	if keyErr != nil {
		s.logger.Warn("cannot fingerprint class snapshot", zap.String("class_id", classID), zap.Error(keyErr))
	}
	if keyErr == nil {
		var cached dto.ClassStatsResponse
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	result := s.computeStats(*snapshot)
	if keyErr == nil {
		_ = s.cache.Set(ctx, key, result, s.cacheTTL)
	}
	return result, false, nil
}

// WarmClassStats is a jobs.Handler that precomputes the cached statistics of
// the class named in the job payload.
func (s *GradebookService) WarmClassStats(ctx context.Context, job jobs.Job) error {
	classID, ok := job.Payload.(string)
	if !ok || classID == "" {
		return fmt.Errorf("warm class stats: unexpected payload %T", job.Payload)
	}
	if !s.cache.Enabled() {
		return nil
	}
	snapshot, err := s.loadSnapshot(ctx, classID)
	if err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrNotFound.Code {
			// The class was deleted after the job was queued.
			return nil
		}
		return err
	}
	key, err := statsCacheKey(*snapshot)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, key, s.computeStats(*snapshot), s.cacheTTL)
}

// ValidateWeights checks a proposed set of term unit weights. Entries that do
// not parse as numbers count as 0.
func (s *GradebookService) ValidateWeights(entries []models.Number) dto.WeightValidationResponse {
	weights := proposedWeights(entries)
	total := weightTotal(weights)
	valid := IsValidWeightDistribution(weights)
	if !valid {
		s.metrics.RecordRejectedWeights()
	}
	return dto.WeightValidationResponse{Valid: valid, Total: total}
}

func (s *GradebookService) computeStats(snapshot models.ClassConfig) *dto.ClassStatsResponse {
	start := time.Now()
	stats := ComputeClassStats(snapshot)
	s.metrics.ObserveComputation(ComputationStats, len(snapshot.Students), time.Since(start))
	return &dto.ClassStatsResponse{
		ClassID:      snapshot.ID,
		StudentCount: len(snapshot.Students),
		Stats:        stats,
		GeneratedAt:  s.now(),
	}
}

func (s *GradebookService) loadClass(ctx context.Context, classID string) (*models.ClassConfig, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// loadSnapshot returns the class with its full roster attached.
func (s *GradebookService) loadSnapshot(ctx context.Context, classID string) (*models.ClassConfig, error) {
	start := time.Now()
	class, err := s.loadClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	students, err := s.students.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	s.metrics.ObserveDBQuery("class_snapshot", time.Since(start))
	class.Students = students
	return class, nil
}

func studentReport(student models.Student, class models.ClassConfig) dto.StudentReport {
	averages := ComputeStudentAverages(student, class)
	return dto.StudentReport{
		StudentID:           student.ID,
		Name:                student.Name,
		Averages:            averages,
		Band:                bandOf(averages.OverallGrade),
		StartingOverallMark: student.StartingOverallMark,
	}
}

func bandOf(overall *float64) *models.GradeBand {
	band, ok := BandFor(overall)
	if !ok {
		return nil
	}
	return &band
}

// statsCacheKey derives a key from the full snapshot so any change to the
// class or its roster yields a different key.
func statsCacheKey(snapshot models.ClassConfig) (string, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("fingerprint class %s: %w", snapshot.ID, err)
	}
	sum := sha256.Sum256(payload)
	return statsCachePrefix + snapshot.ID + ":" + hex.EncodeToString(sum[:]), nil
}
