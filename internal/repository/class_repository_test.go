package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var classRowColumns = []string{"id", "name", "category_weights", "final_weight", "units", "created_at", "updated_at"}

func TestClassRepositoryFindByIDDecodesJSON(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewClassRepository(db)

	units := `[{"id":"u1","name":"Unit 1","order":1,"weight":"40","is_final":false,"assignments":[{"id":"a1","name":"Quiz","order":1,"weight":null,"is_submitted":false,"category_totals":{"k":10},"total":null}]}]`
	rows := sqlmock.NewRows(classRowColumns).
		AddRow("c1", "Math 9", []byte(`{"k":40,"t":"20"}`), nil, []byte(units), time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, category_weights, final_weight, units, created_at, updated_at FROM classes WHERE id = $1")).
		WithArgs("c1").
		WillReturnRows(rows)

	class, err := repo.FindByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Math 9", class.Name)
	assert.False(t, class.FinalWeight.Valid)
	assert.Equal(t, 30.0, class.FinalWeightPercent())
	assert.Equal(t, 40.0, class.CategoryWeights.Weight(models.CategoryKnowledge))
	assert.Equal(t, 20.0, class.CategoryWeights.Weight(models.CategoryThinking))
	assert.Equal(t, 25.0, class.CategoryWeights.Weight(models.CategoryApplication))
	require.Len(t, class.Units, 1)
	assert.Equal(t, 40.0, class.Units[0].WeightPercent())
	assert.Equal(t, 1.0, class.Units[0].Assignments[0].WeightFactor())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectQuery("FROM classes WHERE id").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestClassRepositoryList(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewClassRepository(db)

	rows := sqlmock.NewRows(classRowColumns).
		AddRow("c1", "Math 9", []byte(`{}`), 20.0, []byte(`[]`), time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, category_weights, final_weight, units, created_at, updated_at FROM classes WHERE 1=1 AND LOWER(name) LIKE $1 ORDER BY name ASC, id ASC LIMIT 10 OFFSET 10")).
		WithArgs("%math%").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM classes WHERE 1=1 AND LOWER(name) LIKE $1")).
		WithArgs("%math%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	classes, total, err := repo.List(context.Background(), models.ClassFilter{Search: " Math ", Page: 2, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, 11, total)
	assert.Equal(t, 20.0, classes[0].FinalWeightPercent())
	assert.Empty(t, classes[0].Units)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectExec("INSERT INTO classes").
		WithArgs(sqlmock.AnyArg(), "Math 9", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	class := &models.ClassConfig{Name: "Math 9", CategoryWeights: models.DefaultCategoryWeights()}
	require.NoError(t, repo.Create(context.Background(), class))
	assert.NotEmpty(t, class.ID)
	assert.False(t, class.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryExistsByName(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM classes WHERE LOWER(name) = LOWER($1) AND id <> $2 LIMIT 1")).
		WithArgs("Math 9", "c1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM classes WHERE LOWER(name) = LOWER($1) LIMIT 1")).
		WithArgs("Math 9").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsByName(context.Background(), "Math 9", "c1")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.ExistsByName(context.Background(), "Math 9", "")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryUpdateUnits(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE classes SET units = $1, updated_at = $2 WHERE id = $3")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE classes SET units = $1, updated_at = $2 WHERE id = $3")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	units := []models.Unit{{ID: "u1", Name: "Unit 1", Weight: models.NewNumber(100)}}
	require.NoError(t, repo.UpdateUnits(context.Background(), "c1", units))
	assert.ErrorIs(t, repo.UpdateUnits(context.Background(), "gone", nil), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM classes WHERE id = $1")).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "c1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
