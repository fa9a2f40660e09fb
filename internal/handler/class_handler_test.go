package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/service"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type fakeClassSrv struct {
	classes    []models.ClassConfig
	pagination *models.Pagination
	class      *models.ClassConfig
	err        error

	lastFilter  models.ClassFilter
	lastID      string
	lastCreate  service.ClassSettingsRequest
	lastWeights service.UnitWeightsRequest
}

func (f *fakeClassSrv) List(_ context.Context, filter models.ClassFilter) ([]models.ClassConfig, *models.Pagination, error) {
	f.lastFilter = filter
	return f.classes, f.pagination, f.err
}

func (f *fakeClassSrv) Get(_ context.Context, id string) (*models.ClassConfig, error) {
	f.lastID = id
	return f.class, f.err
}

func (f *fakeClassSrv) Create(_ context.Context, req service.ClassSettingsRequest) (*models.ClassConfig, error) {
	f.lastCreate = req
	return f.class, f.err
}

func (f *fakeClassSrv) UpdateSettings(_ context.Context, id string, _ service.ClassSettingsRequest) (*models.ClassConfig, error) {
	f.lastID = id
	return f.class, f.err
}

func (f *fakeClassSrv) Delete(_ context.Context, id string) error {
	f.lastID = id
	return f.err
}

func (f *fakeClassSrv) ReplaceUnits(_ context.Context, id string, _ service.ReplaceUnitsRequest) (*models.ClassConfig, error) {
	f.lastID = id
	return f.class, f.err
}

func (f *fakeClassSrv) UpdateUnitWeights(_ context.Context, id string, req service.UnitWeightsRequest) (*models.ClassConfig, error) {
	f.lastID = id
	f.lastWeights = req
	return f.class, f.err
}

func newTestContext(method, target, body string, params ...gin.Param) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	if body != "" {
		c.Request = httptest.NewRequest(method, target, strings.NewReader(body))
		c.Request.Header.Set("Content-Type", "application/json")
	} else {
		c.Request = httptest.NewRequest(method, target, nil)
	}
	c.Params = params
	return c, rec
}

func TestClassHandlerListPassesFilter(t *testing.T) {
	srv := &fakeClassSrv{
		classes:    []models.ClassConfig{{ID: "class-1", Name: "Math 9"}},
		pagination: &models.Pagination{Page: 2, PageSize: 5, TotalCount: 6},
	}
	handler := NewClassHandler(srv)

	c, rec := newTestContext(http.MethodGet, "/classes?search=%20math%20&page=2&limit=5", "")
	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ClassFilter{Search: "math", Page: 2, PageSize: 5}, srv.lastFilter)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data, 1)
	assert.NotNil(t, envelope.Pagination)
}

func TestClassHandlerCreate(t *testing.T) {
	srv := &fakeClassSrv{class: &models.ClassConfig{ID: "class-1", Name: "Math 9"}}
	handler := NewClassHandler(srv)

	c, rec := newTestContext(http.MethodPost, "/classes", `{"name":"Math 9","category_weights":{"k":40,"t":20,"c":20,"a":20},"final_weight":25}`)
	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Math 9", srv.lastCreate.Name)
	assert.Equal(t, 40.0, srv.lastCreate.CategoryWeights[models.CategoryKnowledge])
	require.NotNil(t, srv.lastCreate.FinalWeight)
	assert.Equal(t, 25.0, *srv.lastCreate.FinalWeight)
}

func TestClassHandlerCreateRejectsMalformedBody(t *testing.T) {
	handler := NewClassHandler(&fakeClassSrv{})

	c, rec := newTestContext(http.MethodPost, "/classes", `{"name":`)
	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, appErrors.ErrValidation.Code, envelope.Error["code"])
}

func TestClassHandlerGetNotFound(t *testing.T) {
	srv := &fakeClassSrv{err: appErrors.Clone(appErrors.ErrNotFound, "class not found")}
	handler := NewClassHandler(srv)

	c, rec := newTestContext(http.MethodGet, "/classes/missing", "", gin.Param{Key: "id", Value: "missing"})
	handler.Get(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "missing", srv.lastID)
}

func TestClassHandlerUpdateUnitWeightsRejected(t *testing.T) {
	srv := &fakeClassSrv{err: appErrors.Clone(appErrors.ErrInvalidWeights, "unit weights total 90, expected 100")}
	handler := NewClassHandler(srv)

	c, rec := newTestContext(http.MethodPatch, "/classes/class-1/units/weights", `{"weights":{"u1":"50","u2":40,"u3":"abc"}}`,
		gin.Param{Key: "id", Value: "class-1"})
	handler.UpdateUnitWeights(c)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, map[string]models.Number{"u1": models.NewNumber(50), "u2": models.NewNumber(40), "u3": {}}, srv.lastWeights.Weights)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, appErrors.ErrInvalidWeights.Code, envelope.Error["code"])
}

func TestClassHandlerDelete(t *testing.T) {
	srv := &fakeClassSrv{}
	handler := NewClassHandler(srv)

	c, _ := newTestContext(http.MethodDelete, "/classes/class-1", "", gin.Param{Key: "id", Value: "class-1"})
	handler.Delete(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "class-1", srv.lastID)
}
