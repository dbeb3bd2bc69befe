// Package vector is a thin client for the Chroma REST API. It maintains the
// single "messages" collection used for semantic retrieval, with cosine
// space and per-id upserts.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// CollectionName is the single vector collection.
const CollectionName = "messages"

// SnippetLimit caps the document text stored alongside each vector.
const SnippetLimit = 512

// APIError is a non-2xx response from the vector store.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vector store error: status %d: %s", e.Status, e.Body)
}

// Metadata is the snapshot stored with each vector. Chroma metadata values
// are strings.
type Metadata map[string]string

// QueryHit is one nearest-neighbour result.
type QueryHit struct {
	ID         string
	Document   string
	Metadata   Metadata
	Similarity float64 // 1 - cosine distance
}

// Client talks to one Chroma server. Safe for concurrent use; the collection
// id is resolved once and cached.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu           sync.Mutex
	collectionID string
}

// New creates a client for the Chroma server at host:port.
func New(host string, port int) *Client {
	return &Client{
		baseURL:    fmt.Sprintf("http://%s:%d/api/v1", host, port),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// NewWithBaseURL creates a client against an explicit base URL (tests).
func NewWithBaseURL(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL + "/api/v1",
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type collectionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// collection returns the collection id, creating the collection on first use.
func (c *Client) collection(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collectionID != "" {
		return c.collectionID, nil
	}

	body := map[string]any{
		"name":          CollectionName,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
		"get_or_create": true,
	}
	var resp collectionResponse
	if err := c.doRequest(ctx, http.MethodPost, "/collections", body, &resp); err != nil {
		return "", fmt.Errorf("ensure collection: %w", err)
	}
	c.collectionID = resp.ID
	return c.collectionID, nil
}

// Upsert writes vectors keyed by message id. Re-written ids replace their
// previous vector, so retries are safe.
func (c *Client) Upsert(ctx context.Context, ids []string, embeddings [][]float32, metadatas []Metadata, documents []string) error {
	if len(ids) == 0 {
		return nil
	}
	coll, err := c.collection(ctx)
	if err != nil {
		return err
	}

	body := map[string]any{
		"ids":        ids,
		"embeddings": embeddings,
		"metadatas":  metadatas,
		"documents":  documents,
	}
	if err := c.doRequest(ctx, http.MethodPost, "/collections/"+coll+"/upsert", body, nil); err != nil {
		return fmt.Errorf("upsert %d vectors: %w", len(ids), err)
	}
	return nil
}

type queryResponse struct {
	IDs       [][]string   `json:"ids"`
	Documents [][]string   `json:"documents"`
	Metadatas [][]Metadata `json:"metadatas"`
	Distances [][]float64  `json:"distances"`
}

// Query returns the n nearest neighbours of the embedding by cosine
// similarity, best first.
func (c *Client) Query(ctx context.Context, embedding []float32, n int) ([]QueryHit, error) {
	coll, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"query_embeddings": [][]float32{embedding},
		"n_results":        n,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	var resp queryResponse
	if err := c.doRequest(ctx, http.MethodPost, "/collections/"+coll+"/query", body, &resp); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	if len(resp.IDs) == 0 {
		return nil, nil
	}
	hits := make([]QueryHit, 0, len(resp.IDs[0]))
	for i, id := range resp.IDs[0] {
		hit := QueryHit{ID: id, Similarity: 1}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			hit.Document = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			hit.Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			hit.Similarity = 1 - resp.Distances[0][i]
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count returns the number of vectors in the collection.
func (c *Client) Count(ctx context.Context) (int, error) {
	coll, err := c.collection(ctx)
	if err != nil {
		return 0, err
	}
	var count int
	if err := c.doRequest(ctx, http.MethodGet, "/collections/"+coll+"/count", nil, &count); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}

type getResponse struct {
	IDs []string `json:"ids"`
}

// ListIDs pages through the stored vector ids. Used to cull orphans after
// training.
func (c *Client) ListIDs(ctx context.Context, limit, offset int) ([]string, error) {
	coll, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"limit":   limit,
		"offset":  offset,
		"include": []string{},
	}
	var resp getResponse
	if err := c.doRequest(ctx, http.MethodPost, "/collections/"+coll+"/get", body, &resp); err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	return resp.IDs, nil
}

// Delete removes vectors by id.
func (c *Client) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	coll, err := c.collection(ctx)
	if err != nil {
		return err
	}
	body := map[string]any{"ids": ids}
	if err := c.doRequest(ctx, http.MethodPost, "/collections/"+coll+"/delete", body, nil); err != nil {
		return fmt.Errorf("delete %d vectors: %w", len(ids), err)
	}
	return nil
}

// Clear drops and recreates the collection. Called in lock-step with
// document-store truncation to preserve the dual-write invariant.
func (c *Client) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.collectionID = ""
	c.mu.Unlock()

	err := c.doRequest(ctx, http.MethodDelete, "/collections/"+CollectionName, nil, nil)
	if err != nil {
		// A missing collection is already clear.
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
			return fmt.Errorf("clear collection: %w", err)
		}
	}

	_, err = c.collection(ctx)
	return err
}

// doRequest handles the request/response cycle with error decoding.
func (c *Client) doRequest(ctx context.Context, method, path string, body, response any) error {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: string(data)}
	}

	if response == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
