package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChroma implements just enough of the Chroma REST API for the client.
type fakeChroma struct {
	vectors   map[string][]float32
	documents map[string]string
	created   int
}

func (f *fakeChroma) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/collections", func(w http.ResponseWriter, r *http.Request) {
		f.created++
		if f.vectors == nil {
			f.vectors = make(map[string][]float32)
			f.documents = make(map[string]string)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "coll-1", "name": CollectionName})
	})

	mux.HandleFunc("DELETE /api/v1/collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.vectors = nil
		f.documents = nil
	})

	mux.HandleFunc("POST /api/v1/collections/{id}/upsert", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			IDs        []string    `json:"ids"`
			Embeddings [][]float32 `json:"embeddings"`
			Documents  []string    `json:"documents"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		for i, id := range body.IDs {
			f.vectors[id] = body.Embeddings[i]
			f.documents[id] = body.Documents[i]
		}
	})

	mux.HandleFunc("GET /api/v1/collections/{id}/count", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(len(f.vectors))
	})

	mux.HandleFunc("POST /api/v1/collections/{id}/delete", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			IDs []string `json:"ids"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		for _, id := range body.IDs {
			delete(f.vectors, id)
			delete(f.documents, id)
		}
	})

	mux.HandleFunc("POST /api/v1/collections/{id}/query", func(w http.ResponseWriter, r *http.Request) {
		// Static ranking is enough for the client contract.
		ids := make([]string, 0, len(f.vectors))
		docs := make([]string, 0, len(f.vectors))
		distances := make([]float64, 0, len(f.vectors))
		for id := range f.vectors {
			ids = append(ids, id)
			docs = append(docs, f.documents[id])
			distances = append(distances, 0.25)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"ids":       [][]string{ids},
			"documents": [][]string{docs},
			"metadatas": [][]Metadata{make([]Metadata, len(ids))},
			"distances": [][]float64{distances},
		})
	})

	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeChroma) {
	t.Helper()
	fake := &fakeChroma{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return NewWithBaseURL(srv.URL), fake
}

func TestUpsertAndCount(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	err := client.Upsert(ctx,
		[]string{"m1", "m2"},
		[][]float32{{0.1, 0.2}, {0.3, 0.4}},
		[]Metadata{{"conversation_id": "C01"}, {"conversation_id": "C01"}},
		[]string{"hello", "world"},
	)
	require.NoError(t, err)

	count, err := client.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Upsert by the same id must not grow the collection.
	err = client.Upsert(ctx, []string{"m1"}, [][]float32{{0.9, 0.9}}, []Metadata{nil}, []string{"hello again"})
	require.NoError(t, err)

	count, err = client.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestQuerySimilarity(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Upsert(ctx, []string{"m1"}, [][]float32{{1, 0}}, []Metadata{nil}, []string{"doc"}))

	hits, err := client.Query(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "m1", hits[0].ID)
	assert.InDelta(t, 0.75, hits[0].Similarity, 1e-9, "similarity must be 1 - distance")
}

func TestDelete(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Upsert(ctx, []string{"m1", "m2"}, [][]float32{{1}, {2}}, []Metadata{nil, nil}, []string{"a", "b"}))
	require.NoError(t, client.Delete(ctx, []string{"m1"}))

	count, err := client.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestClearRecreatesCollection(t *testing.T) {
	client, fake := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Upsert(ctx, []string{"m1"}, [][]float32{{1}}, []Metadata{nil}, []string{"a"}))
	require.NoError(t, client.Clear(ctx))

	count, err := client.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.GreaterOrEqual(t, fake.created, 2, "clear must recreate the collection")
}

func TestEmptyUpsertIsNoop(t *testing.T) {
	// No server: an empty upsert must not even attempt a request.
	client := NewWithBaseURL("http://127.0.0.1:0")
	require.NoError(t, client.Upsert(context.Background(), nil, nil, nil, nil))
}
