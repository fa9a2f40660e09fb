package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/gradebook-api/internal/models"
)

const classColumns = "id, name, category_weights, final_weight, units, created_at, updated_at"

// classRow is the storage shape of a class. Category weights and units are JSONB.
type classRow struct {
	ID              string          `db:"id"`
	Name            string          `db:"name"`
	CategoryWeights types.JSONText  `db:"category_weights"`
	FinalWeight     sql.NullFloat64 `db:"final_weight"`
	Units           types.JSONText  `db:"units"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

func newClassRow(class *models.ClassConfig) (*classRow, error) {
	weights, err := json.Marshal(class.CategoryWeights)
	if err != nil {
		return nil, fmt.Errorf("encode category weights: %w", err)
	}
	units := class.Units
	if units == nil {
		units = []models.Unit{}
	}
	encodedUnits, err := json.Marshal(units)
	if err != nil {
		return nil, fmt.Errorf("encode units: %w", err)
	}
	return &classRow{
		ID:              class.ID,
		Name:            class.Name,
		CategoryWeights: types.JSONText(weights),
		FinalWeight:     sql.NullFloat64{Float64: class.FinalWeight.Value, Valid: class.FinalWeight.Valid},
		Units:           types.JSONText(encodedUnits),
		CreatedAt:       class.CreatedAt,
		UpdatedAt:       class.UpdatedAt,
	}, nil
}

func (row classRow) model() (*models.ClassConfig, error) {
	class := &models.ClassConfig{
		ID:        row.ID,
		Name:      row.Name,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.FinalWeight.Valid {
		class.FinalWeight = models.NewNumber(row.FinalWeight.Float64)
	}
	if len(row.CategoryWeights) > 0 {
		if err := json.Unmarshal(row.CategoryWeights, &class.CategoryWeights); err != nil {
			return nil, fmt.Errorf("decode category weights of %s: %w", row.ID, err)
		}
	}
	if len(row.Units) > 0 {
		if err := json.Unmarshal(row.Units, &class.Units); err != nil {
			return nil, fmt.Errorf("decode units of %s: %w", row.ID, err)
		}
	}
	if class.Units == nil {
		class.Units = []models.Unit{}
	}
	return class, nil
}

// ClassRepository manages persistence for classes.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns classes matching filter criteria ordered by name.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassConfig, int, error) {
	base := "FROM classes WHERE 1=1"
	var args []interface{}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		base += fmt.Sprintf(" AND LOWER(name) LIKE $%d", len(args))
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY name ASC, id ASC LIMIT %d OFFSET %d", classColumns, base, size, offset)
	var rows []classRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}

	classes := make([]models.ClassConfig, 0, len(rows))
	for _, row := range rows {
		class, err := row.model()
		if err != nil {
			return nil, 0, err
		}
		classes = append(classes, *class)
	}
	return classes, total, nil
}

// FindByID returns a class by ID. It returns sql.ErrNoRows when absent.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.ClassConfig, error) {
	var row classRow
	if err := r.db.GetContext(ctx, &row, "SELECT "+classColumns+" FROM classes WHERE id = $1", id); err != nil {
		return nil, err
	}
	return row.model()
}

// ExistsByName checks whether another class already uses the name.
func (r *ClassRepository) ExistsByName(ctx context.Context, name string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM classes WHERE LOWER(name) = LOWER($1)"
	args := []interface{}{name}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class name: %w", err)
	}
	return true, nil
}

// Create persists a class, assigning an ID and timestamps when missing.
func (r *ClassRepository) Create(ctx context.Context, class *models.ClassConfig) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now

	row, err := newClassRow(class)
	if err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	const query = `INSERT INTO classes (id, name, category_weights, final_weight, units, created_at, updated_at) VALUES (:id, :name, :category_weights, :final_weight, :units, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// UpdateSettings stores the name and weighting settings of a class.
func (r *ClassRepository) UpdateSettings(ctx context.Context, class *models.ClassConfig) error {
	class.UpdatedAt = time.Now().UTC()
	row, err := newClassRow(class)
	if err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	const query = `UPDATE classes SET name = :name, category_weights = :category_weights, final_weight = :final_weight, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return requireAffected(res, "update class")
}

// UpdateUnits replaces the unit tree of a class.
func (r *ClassRepository) UpdateUnits(ctx context.Context, id string, units []models.Unit) error {
	if units == nil {
		units = []models.Unit{}
	}
	payload, err := json.Marshal(units)
	if err != nil {
		return fmt.Errorf("encode units: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE classes SET units = $1, updated_at = $2 WHERE id = $3`, types.JSONText(payload), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update class units: %w", err)
	}
	return requireAffected(res, "update class units")
}

// Delete removes a class. Students are removed by the foreign key cascade.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return requireAffected(res, "delete class")
}

// requireAffected maps a statement that touched no rows to sql.ErrNoRows.
func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
