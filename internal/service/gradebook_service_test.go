package service

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/jobs"
)

type memoryCacheRepo struct {
	mu     sync.Mutex
	items  map[string][]byte
	sets   int
	getErr error
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{items: make(map[string][]byte)}
}

func (m *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	m.sets++
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.items {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.items, key)
		}
	}
	return nil
}

func (m *memoryCacheRepo) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.items))
	for key := range m.items {
		out = append(out, key)
	}
	return out
}

type gradebookFixture struct {
	svc      *GradebookService
	classes  *memoryClassRepo
	students *memoryStudentRepo
	cache    *memoryCacheRepo
	metrics  *MetricsService
}

func newGradebookFixture(cacheEnabled bool, students ...models.Student) gradebookFixture {
	classes := newMemoryClassRepo(twoUnitClass())
	roster := newMemoryStudentRepo(students...)
	cacheRepo := newMemoryCacheRepo()
	metrics := NewMetricsService()
	cache := NewCacheService(cacheRepo, metrics, time.Minute, zap.NewNop(), cacheEnabled)
	svc := NewGradebookService(classes, roster, cache, metrics, time.Minute, zap.NewNop())
	return gradebookFixture{svc: svc, classes: classes, students: roster, cache: cacheRepo, metrics: metrics}
}

func rosterStudents() []models.Student {
	return []models.Student{
		{ID: "s3", ClassID: "class-1", Name: "Cleo", Grades: map[string]models.GradeEntry{
			"a1": uniformEntry("4"), "a2": uniformEntry("8"), "f1": {Grade: "20"},
		}},
		{ID: "s1", ClassID: "class-1", Name: "Ada", Grades: map[string]models.GradeEntry{
			"a1": uniformEntry("9"), "a2": uniformEntry("18"), "f1": {Grade: "45"},
		}},
		{ID: "s2", ClassID: "class-1", Name: "Ada"},
	}
}

func TestGradebookStudentReport(t *testing.T) {
	f := newGradebookFixture(false, rosterStudents()...)

	report, err := f.svc.StudentReport(context.Background(), "class-1", "s1")
	require.NoError(t, err)
	requireMark(t, 90, report.Averages.TermMark)
	requireMark(t, 90, report.Averages.FinalMark)
	requireMark(t, 90, report.Averages.OverallGrade)
	require.NotNil(t, report.Band)
	assert.Equal(t, models.BandLevel4, *report.Band)

	empty, err := f.svc.StudentReport(context.Background(), "class-1", "s2")
	require.NoError(t, err)
	assert.Nil(t, empty.Band)
	assert.Nil(t, empty.Averages.OverallGrade)

	_, err = f.svc.StudentReport(context.Background(), "class-1", "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
	_, err = f.svc.StudentReport(context.Background(), "missing", "s1")
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
}

func TestGradebookClassReportOrdering(t *testing.T) {
	f := newGradebookFixture(false, rosterStudents()...)

	report, err := f.svc.ClassReport(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, "Math 9", report.ClassName)
	require.Len(t, report.Students, 3)
	ids := []string{report.Students[0].StudentID, report.Students[1].StudentID, report.Students[2].StudentID}
	assert.Equal(t, []string{"s1", "s2", "s3"}, ids)
	require.NotNil(t, report.Students[2].Band)
	assert.Equal(t, models.BandR, *report.Students[2].Band)
}

func TestGradebookClassStatsCaching(t *testing.T) {
	f := newGradebookFixture(true, rosterStudents()...)
	ctx := context.Background()

	first, hit, err := f.svc.ClassStats(ctx, "class-1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 3, first.StudentCount)
	require.NotNil(t, first.Stats)
	assert.Equal(t, 1, first.Stats.Distribution[models.BandLevel4])
	assert.Equal(t, 1, first.Stats.Distribution[models.BandR])

	second, hit, err := f.svc.ClassStats(ctx, "class-1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first.Stats, second.Stats)

	keys := f.cache.keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "gradebook:stats:class-1:"))

	// A grade change produces a new fingerprint and therefore a miss.
	s2 := f.students.students["s2"]
	s2.Grades = map[string]models.GradeEntry{"a1": uniformEntry("7")}
	f.students.students["s2"] = s2

	third, hit, err := f.svc.ClassStats(ctx, "class-1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, third.Stats.Distribution[models.BandLevel3])
	assert.Len(t, f.cache.keys(), 2)
}

func TestGradebookClassStatsEmptyClass(t *testing.T) {
	f := newGradebookFixture(true)

	result, hit, err := f.svc.ClassStats(context.Background(), "class-1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, result.Stats)
	assert.Zero(t, result.StudentCount)

	cached, hit, err := f.svc.ClassStats(context.Background(), "class-1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Nil(t, cached.Stats)
}

func TestGradebookClassStatsCacheErrorFallsBack(t *testing.T) {
	f := newGradebookFixture(true, rosterStudents()...)
	f.cache.getErr = errors.New("redis down")

	result, hit, err := f.svc.ClassStats(context.Background(), "class-1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotNil(t, result.Stats)
}

func TestGradebookClassStatsLoadFailure(t *testing.T) {
	f := newGradebookFixture(true, rosterStudents()...)
	f.students.listErr = errors.New("db gone")

	_, _, err := f.svc.ClassStats(context.Background(), "class-1")
	assert.Equal(t, appErrors.ErrInternal.Code, errorCode(t, err))
}

func TestGradebookWarmClassStats(t *testing.T) {
	f := newGradebookFixture(true, rosterStudents()...)
	ctx := context.Background()

	require.NoError(t, f.svc.WarmClassStats(ctx, jobs.Job{Type: JobWarmClassStats, Payload: "class-1"}))
	assert.Equal(t, 1, f.cache.sets)

	_, hit, err := f.svc.ClassStats(ctx, "class-1")
	require.NoError(t, err)
	assert.True(t, hit)

	assert.NoError(t, f.svc.WarmClassStats(ctx, jobs.Job{Payload: "deleted-class"}))
	assert.Error(t, f.svc.WarmClassStats(ctx, jobs.Job{Payload: 42}))
}

func TestGradebookWarmClassStatsCacheDisabled(t *testing.T) {
	f := newGradebookFixture(false, rosterStudents()...)

	require.NoError(t, f.svc.WarmClassStats(context.Background(), jobs.Job{Payload: "class-1"}))
	assert.Zero(t, f.cache.sets)
}

func TestGradebookValidateWeights(t *testing.T) {
	f := newGradebookFixture(false)

	ok := f.svc.ValidateWeights(decodeWeights(t, `[33.3, 33.3, 33.4]`))
	assert.True(t, ok.Valid)
	assert.InDelta(t, 100, ok.Total, 1e-9)

	bad := f.svc.ValidateWeights(decodeWeights(t, `[25, 25, 25]`))
	assert.False(t, bad.Valid)
	assert.Equal(t, 75.0, bad.Total)
	assert.EqualValues(t, 1, f.metrics.Snapshot().RejectedWeightProposals)
}

func TestGradebookValidateWeightsLenientEntries(t *testing.T) {
	f := newGradebookFixture(false)

	quoted := f.svc.ValidateWeights(decodeWeights(t, `["50", "50"]`))
	assert.True(t, quoted.Valid)
	assert.Equal(t, 100.0, quoted.Total)

	unparsable := f.svc.ValidateWeights(decodeWeights(t, `[50, 50, "abc", null]`))
	assert.True(t, unparsable.Valid)
	assert.Equal(t, 100.0, unparsable.Total)
	assert.Zero(t, f.metrics.Snapshot().RejectedWeightProposals)
}

func decodeWeights(t *testing.T, raw string) []models.Number {
	t.Helper()
	var weights []models.Number
	require.NoError(t, json.Unmarshal([]byte(raw), &weights))
	return weights
}
