package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/jobs"
)

type studentRepository interface {
	ListByClass(ctx context.Context, classID string) ([]models.Student, error)
	FindByID(ctx context.Context, classID, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	UpdateProfile(ctx context.Context, student *models.Student) error
	UpdateGrades(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, classID, id string) error
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassConfig, error)
}

type warmupScheduler interface {
	Enqueue(job jobs.Job) (bool, error)
}

// StudentRequest creates a student or replaces their profile.
type StudentRequest struct {
	Name                string   `json:"name" validate:"required,max=120"`
	StartingOverallMark *float64 `json:"starting_overall_mark" validate:"omitempty,gte=0,lte=100"`
}

// RecordGradesRequest carries grade entries keyed by assignment ID. Without
// Replace, empty scores leave the stored value untouched; with Replace the
// entry is overwritten as sent, so omitted fields are cleared.
type RecordGradesRequest struct {
	Grades  map[string]models.GradeEntry `json:"grades" validate:"required,min=1"`
	Replace bool                         `json:"replace"`
}

// StudentService handles students and grade entry.
type StudentService struct {
	repo      studentRepository
	classes   classReader
	warmup    warmupScheduler
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service. warmup may be nil.
func NewStudentService(repo studentRepository, classes classReader, warmup warmupScheduler, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, classes: classes, warmup: warmup, validator: validate, logger: logger}
}

// List returns the students of a class ordered by name.
func (s *StudentService) List(ctx context.Context, classID string) ([]models.Student, error) {
	if _, err := s.loadClass(ctx, classID); err != nil {
		return nil, err
	}
	students, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, nil
}

// Get returns a single student.
func (s *StudentService) Get(ctx context.Context, classID, id string) (*models.Student, error) {
	return s.loadStudent(ctx, classID, id)
}

// Create enrols a student in a class.
func (s *StudentService) Create(ctx context.Context, classID string, req StudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if _, err := s.loadClass(ctx, classID); err != nil {
		return nil, err
	}
	student := &models.Student{
		ClassID:             classID,
		Name:                strings.TrimSpace(req.Name),
		StartingOverallMark: req.StartingOverallMark,
		Grades:              map[string]models.GradeEntry{},
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.scheduleWarmup(classID)
	return student, nil
}

// Update replaces a student's profile. Grades are untouched.
func (s *StudentService) Update(ctx context.Context, classID, id string, req StudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.loadStudent(ctx, classID, id)
	if err != nil {
		return nil, err
	}
	student.Name = strings.TrimSpace(req.Name)
	student.StartingOverallMark = req.StartingOverallMark
	if err := s.repo.UpdateProfile(ctx, student); err != nil {
		return nil, mapStudentWriteError(err, "failed to update student")
	}
	return student, nil
}

// Delete removes a student from a class.
func (s *StudentService) Delete(ctx context.Context, classID, id string) error {
	if err := s.repo.Delete(ctx, classID, id); err != nil {
		return mapStudentWriteError(err, "failed to delete student")
	}
	s.scheduleWarmup(classID)
	return nil
}

// RecordGrades merges grade entries into the student's record and returns the
// recomputed marks together with any scores worth a second look.
func (s *StudentService) RecordGrades(ctx context.Context, classID, id string, req RecordGradesRequest) (*dto.RecordGradesResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grades payload")
	}
	class, err := s.loadClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	student, err := s.loadStudent(ctx, classID, id)
	if err != nil {
		return nil, err
	}

	assignments := assignmentIDs(*class)
	unknown := make([]string, 0)
	for assignmentID := range req.Grades {
		if _, ok := assignments[assignmentID]; !ok {
			unknown = append(unknown, assignmentID)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown assignments: %s", strings.Join(unknown, ", ")))
	}

	if student.Grades == nil {
		student.Grades = make(map[string]models.GradeEntry, len(req.Grades))
	}
	for assignmentID, entry := range req.Grades {
		merged := student.Grades[assignmentID].Merge(entry, req.Replace)
		if merged.IsEmpty() {
			delete(student.Grades, assignmentID)
			continue
		}
		student.Grades[assignmentID] = merged
	}

	if err := s.repo.UpdateGrades(ctx, student); err != nil {
		return nil, mapStudentWriteError(err, "failed to record grades")
	}
	s.scheduleWarmup(classID)

	averages := ComputeStudentAverages(*student, *class)
	flags := FlagScores(*student, *class)
	if len(flags) > 0 {
		s.logger.Debug("recorded grades carry flagged scores", zap.String("student_id", id), zap.Int("flags", len(flags)))
	}
	return &dto.RecordGradesResponse{
		Student:  *student,
		Averages: averages,
		Band:     bandOf(averages.OverallGrade),
		Flags:    flags,
	}, nil
}

func (s *StudentService) loadClass(ctx context.Context, classID string) (*models.ClassConfig, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

func (s *StudentService) loadStudent(ctx context.Context, classID, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, classID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *StudentService) scheduleWarmup(classID string) {
	if s.warmup == nil {
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Type: JobWarmClassStats, Key: classID, Payload: classID}
	if _, err := s.warmup.Enqueue(job); err != nil {
		s.logger.Warn("failed to schedule stats warm-up", zap.String("class_id", classID), zap.Error(err))
	}
}

func mapStudentWriteError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func assignmentIDs(class models.ClassConfig) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, unit := range class.Units {
		for _, assignment := range unit.Assignments {
			ids[assignment.ID] = struct{}{}
		}
	}
	return ids
}
