package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/imago/internal/models"
)

func qdrantOK(result interface{}) []byte {
	data, _ := json.Marshal(map[string]interface{}{
		"result": result,
		"status": "ok",
		"time":   0.001,
	})
	return data
}

func TestListCollections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/collections", r.URL.Path)
		w.Write(qdrantOK(map[string]interface{}{
			"collections": []map[string]string{
				{"name": "holiday"},
				{"name": "work"},
			},
		}))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	infos, err := client.ListCollections(context.Background())

	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "holiday", infos[0].Name)
}

func TestCreateCollection_SendsVectorParams(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/collections/holiday", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write(qdrantOK(true))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.CreateCollection(context.Background(), "holiday", 512, models.DistanceCosine)

	require.NoError(t, err)
	vectors := gotBody["vectors"].(map[string]interface{})
	assert.Equal(t, float64(512), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestCollectionExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/holiday/exists", r.URL.Path)
		w.Write(qdrantOK(map[string]bool{"exists": true}))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	exists, err := client.CollectionExists(context.Background(), "holiday")

	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDeleteCollection(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/collections/old", r.URL.Path)
		w.Write(qdrantOK(true))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	require.NoError(t, client.DeleteCollection(context.Background(), "old"))
	assert.True(t, called)
}

func TestUpsertPoints_WaitsForDurability(t *testing.T) {
	var gotBody struct {
		Points []models.Point `json:"points"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/collections/holiday/points", r.URL.Path)
		require.Equal(t, "true", r.URL.Query().Get("wait"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write(qdrantOK(map[string]string{"operation_id": "1", "status": "completed"}))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	points := []models.Point{
		{ID: "id-1", Vector: []float32{1, 2}, Payload: map[string]interface{}{"filename": "a.jpg"}},
	}
	require.NoError(t, client.UpsertPoints(context.Background(), "holiday", points))
	require.Len(t, gotBody.Points, 1)
	assert.Equal(t, "id-1", gotBody.Points[0].ID)
}

func TestUpsertPoints_EmptyBatchSkipsRequest(t *testing.T) {
	client := NewClient("http://127.0.0.1:1") // must never be dialed
	assert.NoError(t, client.UpsertPoints(context.Background(), "holiday", nil))
}

func TestUpsertPoints_ErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "wrong vector size", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.UpsertPoints(context.Background(), "holiday", []models.Point{{ID: "x"}})

	require.Error(t, err)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
}
