package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassConfig, int, error)
	FindByID(ctx context.Context, id string) (*models.ClassConfig, error)
	ExistsByName(ctx context.Context, name string, excludeID string) (bool, error)
	Create(ctx context.Context, class *models.ClassConfig) error
	UpdateSettings(ctx context.Context, class *models.ClassConfig) error
	UpdateUnits(ctx context.Context, id string, units []models.Unit) error
	Delete(ctx context.Context, id string) error
}

// ClassSettingsRequest creates a class or replaces its settings. Missing
// category weights are stored as 25 and a missing final weight as 30.
type ClassSettingsRequest struct {
	Name            string                      `json:"name" validate:"required,max=120"`
	CategoryWeights map[models.Category]float64 `json:"category_weights" validate:"omitempty,dive,keys,oneof=k t c a,endkeys,gte=0,lte=100"`
	FinalWeight     *float64                    `json:"final_weight" validate:"omitempty,gte=0,lte=100"`
	Units           []models.Unit               `json:"units,omitempty"`
}

// ReplaceUnitsRequest replaces the unit tree of a class.
type ReplaceUnitsRequest struct {
	Units []models.Unit `json:"units" validate:"required"`
}

// UnitWeightsRequest proposes new weights for term units, keyed by unit ID.
// Entries that do not parse as numbers count as 0.
type UnitWeightsRequest struct {
	Weights map[string]models.Number `json:"weights" validate:"required,min=1"`
}

// ClassService coordinates class configuration.
type ClassService struct {
	repo      classRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(repo classRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, cache: cache, metrics: metrics, validator: validate, logger: logger}
}

// List returns classes with pagination metadata.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassConfig, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a class with its unit tree.
func (s *ClassService) Get(ctx context.Context, id string) (*models.ClassConfig, error) {
	return s.load(ctx, id)
}

// Create adds a new class.
func (s *ClassService) Create(ctx context.Context, req ClassSettingsRequest) (*models.ClassConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	name := strings.TrimSpace(req.Name)
	if err := s.ensureUniqueName(ctx, name, ""); err != nil {
		return nil, err
	}

	units, err := prepareUnits(req.Units)
	if err != nil {
		return nil, err
	}

	class := &models.ClassConfig{
		Name:            name,
		CategoryWeights: categoryWeightsFrom(req.CategoryWeights),
		FinalWeight:     finalWeightFrom(req.FinalWeight),
		Units:           units,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	s.logger.Info("class created", zap.String("class_id", class.ID), zap.Int("units", len(class.Units)))
	return class, nil
}

// UpdateSettings replaces the name and weighting settings of a class.
func (s *ClassService) UpdateSettings(ctx context.Context, id string, req ClassSettingsRequest) (*models.ClassConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	class, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if err := s.ensureUniqueName(ctx, name, id); err != nil {
		return nil, err
	}

	class.Name = name
	class.CategoryWeights = categoryWeightsFrom(req.CategoryWeights)
	class.FinalWeight = finalWeightFrom(req.FinalWeight)
	if err := s.repo.UpdateSettings(ctx, class); err != nil {
		return nil, s.mapWriteError(err, "failed to update class")
	}
	s.invalidate(ctx, id)
	return class, nil
}

// Delete removes a class and its students.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.mapWriteError(err, "failed to delete class")
	}
	s.invalidate(ctx, id)
	s.logger.Info("class deleted", zap.String("class_id", id))
	return nil
}

// ReplaceUnits swaps the whole unit tree after checking there is at most one
// final unit and that term unit weights total 100.
func (s *ClassService) ReplaceUnits(ctx context.Context, id string, req ReplaceUnitsRequest) (*models.ClassConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid units payload")
	}
	class, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	units, err := prepareUnits(req.Units)
	if err != nil {
		if appErr := appErrors.FromError(err); appErr.Code == appErrors.ErrInvalidWeights.Code {
			s.metrics.RecordRejectedWeights()
		}
		return nil, err
	}
	if err := s.repo.UpdateUnits(ctx, id, units); err != nil {
		return nil, s.mapWriteError(err, "failed to update units")
	}
	class.Units = units
	s.invalidate(ctx, id)
	return class, nil
}

// UpdateUnitWeights merges proposed weights over the current term units and
// commits them only when the resulting distribution totals 100.
func (s *ClassService) UpdateUnitWeights(ctx context.Context, id string, req UnitWeightsRequest) (*models.ClassConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid weights payload")
	}
	class, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	known := make(map[string]models.Unit, len(class.Units))
	for _, unit := range class.Units {
		known[unit.ID] = unit
	}
	for unitID, weight := range req.Weights {
		unit, ok := known[unitID]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown unit %s", unitID))
		}
		if unit.IsFinal {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unit %s is the final assessment and carries no term weight", unitID))
		}
		if value := weight.Or(0); value < 0 || value > 100 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unit %s weight %g outside 0..100", unitID, value))
		}
	}

	units := make([]models.Unit, len(class.Units))
	copy(units, class.Units)
	proposed := make([]float64, 0, len(units))
	for i := range units {
		if units[i].IsFinal {
			continue
		}
		if weight, ok := req.Weights[units[i].ID]; ok {
			units[i].Weight = models.NewNumber(weight.Or(0))
		}
		proposed = append(proposed, units[i].WeightPercent())
	}
	if !IsValidWeightDistribution(proposed) {
		s.metrics.RecordRejectedWeights()
		return nil, invalidWeightsError(proposed)
	}

	if err := s.repo.UpdateUnits(ctx, id, units); err != nil {
		return nil, s.mapWriteError(err, "failed to update unit weights")
	}
	class.Units = units
	s.invalidate(ctx, id)
	return class, nil
}

func (s *ClassService) load(ctx context.Context, id string) (*models.ClassConfig, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

func (s *ClassService) ensureUniqueName(ctx context.Context, name, excludeID string) error {
	exists, err := s.repo.ExistsByName(ctx, name, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class name")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "class name already exists")
	}
	return nil
}

func (s *ClassService) mapWriteError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func (s *ClassService) invalidate(ctx context.Context, classID string) {
	// Stale entries are unreachable anyway; this only reclaims space.
	_ = s.cache.Invalidate(ctx, statsCachePattern(classID))
}

func categoryWeightsFrom(input map[models.Category]float64) models.CategoryWeights {
	weights := models.DefaultCategoryWeights()
	for category, weight := range input {
		weights[category] = models.NewNumber(weight)
	}
	return weights
}

func finalWeightFrom(input *float64) models.Number {
	if input == nil {
		return models.NewNumber(models.DefaultFinalWeight)
	}
	return models.NewNumber(*input)
}

// prepareUnits assigns missing IDs and checks the structural rules of a unit tree.
func prepareUnits(input []models.Unit) ([]models.Unit, error) {
	units := make([]models.Unit, len(input))
	seen := make(map[string]struct{})
	finals := 0
	termWeights := make([]float64, 0, len(input))

	for i, unit := range input {
		unit.Name = strings.TrimSpace(unit.Name)
		if unit.Name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unit %d has no name", i+1))
		}
		if unit.ID == "" {
			unit.ID = uuid.NewString()
		}
		if err := claimID(seen, unit.ID); err != nil {
			return nil, err
		}
		if unit.IsFinal {
			finals++
		} else {
			if unit.Weight.Valid && (unit.Weight.Value < 0 || unit.Weight.Value > 100) {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unit %s weight must be between 0 and 100", unit.Name))
			}
			termWeights = append(termWeights, unit.WeightPercent())
		}

		assignments := make([]models.Assignment, len(unit.Assignments))
		for j, assignment := range unit.Assignments {
			assignment.Name = strings.TrimSpace(assignment.Name)
			if assignment.Name == "" {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("assignment %d of unit %s has no name", j+1, unit.Name))
			}
			if assignment.ID == "" {
				assignment.ID = uuid.NewString()
			}
			if err := claimID(seen, assignment.ID); err != nil {
				return nil, err
			}
			if err := checkAssignmentNumbers(assignment); err != nil {
				return nil, err
			}
			assignments[j] = assignment
		}
		unit.Assignments = assignments
		units[i] = unit
	}

	if finals > 1 {
		return nil, appErrors.Clone(appErrors.ErrMultipleFinals, fmt.Sprintf("%d units are marked final, at most one is allowed", finals))
	}
	if len(termWeights) > 0 && !IsValidWeightDistribution(termWeights) {
		return nil, invalidWeightsError(termWeights)
	}
	return units, nil
}

func claimID(seen map[string]struct{}, id string) error {
	if _, dup := seen[id]; dup {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate id %s", id))
	}
	seen[id] = struct{}{}
	return nil
}

func checkAssignmentNumbers(a models.Assignment) error {
	negative := func(n models.Number) bool { return n.Valid && n.Value < 0 }
	if negative(a.Weight) || negative(a.Total) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("assignment %s has a negative weight or total", a.Name))
	}
	for category, total := range a.CategoryTotals {
		if negative(total) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("assignment %s has a negative %s total", a.Name, category))
		}
	}
	return nil
}

func invalidWeightsError(weights []float64) error {
	return appErrors.Clone(appErrors.ErrInvalidWeights, fmt.Sprintf("unit weights total %g, expected 100", weightTotal(weights)))
}
