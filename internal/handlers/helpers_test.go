package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON_SetsContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusTeapot, map[string]string{"k": "v"}))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "v", body["k"])
}

func TestWriteError_Shape(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteError(rec, http.StatusBadRequest, "boom"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "boom", body["error"])
}

func TestRequireMethod(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/ingest", nil)

	assert.False(t, RequireMethod(rec, req, http.MethodPost))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/ingest", nil)
	assert.True(t, RequireMethod(rec, req, http.MethodPost))
}

func TestPathSegment(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/abc-123/cancel", nil)

	assert.Equal(t, "api", PathSegment(req, 0))
	assert.Equal(t, "jobs", PathSegment(req, 1))
	assert.Equal(t, "abc-123", PathSegment(req, 2))
	assert.Equal(t, "cancel", PathSegment(req, 3))
	assert.Equal(t, "", PathSegment(req, 4))
	assert.Equal(t, "", PathSegment(req, -1))
}
