package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/gradebook-api/internal/models"
)

const studentColumns = "id, class_id, name, grades, starting_overall_mark, created_at, updated_at"

type studentRow struct {
	ID                  string          `db:"id"`
	ClassID             string          `db:"class_id"`
	Name                string          `db:"name"`
	Grades              types.JSONText  `db:"grades"`
	StartingOverallMark sql.NullFloat64 `db:"starting_overall_mark"`
	CreatedAt           time.Time       `db:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at"`
}

func encodeGrades(grades map[string]models.GradeEntry) (types.JSONText, error) {
	if grades == nil {
		grades = map[string]models.GradeEntry{}
	}
	payload, err := json.Marshal(grades)
	if err != nil {
		return nil, fmt.Errorf("encode grades: %w", err)
	}
	return types.JSONText(payload), nil
}

func newStudentRow(student *models.Student) (*studentRow, error) {
	grades, err := encodeGrades(student.Grades)
	if err != nil {
		return nil, err
	}
	row := &studentRow{
		ID:        student.ID,
		ClassID:   student.ClassID,
		Name:      student.Name,
		Grades:    grades,
		CreatedAt: student.CreatedAt,
		UpdatedAt: student.UpdatedAt,
	}
	if student.StartingOverallMark != nil {
		row.StartingOverallMark = sql.NullFloat64{Float64: *student.StartingOverallMark, Valid: true}
	}
	return row, nil
}

func (row studentRow) model() (*models.Student, error) {
	student := &models.Student{
		ID:        row.ID,
		ClassID:   row.ClassID,
		Name:      row.Name,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.StartingOverallMark.Valid {
		mark := row.StartingOverallMark.Float64
		student.StartingOverallMark = &mark
	}
	if len(row.Grades) > 0 {
		if err := json.Unmarshal(row.Grades, &student.Grades); err != nil {
			return nil, fmt.Errorf("decode grades of %s: %w", row.ID, err)
		}
	}
	if student.Grades == nil {
		student.Grades = map[string]models.GradeEntry{}
	}
	return student, nil
}

// StudentRepository manages persistence for students and their grades.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a student repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// ListByClass returns every student of a class ordered by name.
func (r *StudentRepository) ListByClass(ctx context.Context, classID string) ([]models.Student, error) {
	var rows []studentRow
	query := "SELECT " + studentColumns + " FROM students WHERE class_id = $1 ORDER BY name ASC, id ASC"
	if err := r.db.SelectContext(ctx, &rows, query, classID); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	students := make([]models.Student, 0, len(rows))
	for _, row := range rows {
		student, err := row.model()
		if err != nil {
			return nil, err
		}
		students = append(students, *student)
	}
	return students, nil
}

// FindByID returns a student of a class. It returns sql.ErrNoRows when absent.
func (r *StudentRepository) FindByID(ctx context.Context, classID, id string) (*models.Student, error) {
	var row studentRow
	query := "SELECT " + studentColumns + " FROM students WHERE class_id = $1 AND id = $2"
	if err := r.db.GetContext(ctx, &row, query, classID, id); err != nil {
		return nil, err
	}
	return row.model()
}

// Create persists a student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now

	row, err := newStudentRow(student)
	if err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	const query = `INSERT INTO students (id, class_id, name, grades, starting_overall_mark, created_at, updated_at) VALUES (:id, :class_id, :name, :grades, :starting_overall_mark, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// UpdateProfile stores the name and starting overall mark.
func (r *StudentRepository) UpdateProfile(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	row, err := newStudentRow(student)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	const query = `UPDATE students SET name = :name, starting_overall_mark = :starting_overall_mark, updated_at = :updated_at WHERE id = :id AND class_id = :class_id`
	res, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return requireAffected(res, "update student")
}

// UpdateGrades replaces the stored grade map of a student.
func (r *StudentRepository) UpdateGrades(ctx context.Context, student *models.Student) error {
	grades, err := encodeGrades(student.Grades)
	if err != nil {
		return err
	}
	student.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE students SET grades = $1, updated_at = $2 WHERE id = $3 AND class_id = $4`,
		grades, student.UpdatedAt, student.ID, student.ClassID)
	if err != nil {
		return fmt.Errorf("update grades: %w", err)
	}
	return requireAffected(res, "update grades")
}

// Delete removes a student from a class.
func (r *StudentRepository) Delete(ctx context.Context, classID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE class_id = $1 AND id = $2`, classID, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return requireAffected(res, "delete student")
}
