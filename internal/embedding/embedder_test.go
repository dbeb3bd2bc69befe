package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient returns canned vectors of a fixed dimension.
type fakeClient struct {
	dimension int
	err       error
	calls     int
}

func (f *fakeClient) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dimension)
	}
	return out, nil
}

func (f *fakeClient) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return make([]float32, f.dimension), nil
}

func TestEmbed(t *testing.T) {
	e := NewWithClient(&fakeClient{dimension: 768}, "nomic-embed-text", 768)

	vector, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vector, 768)
	assert.Equal(t, "nomic-embed-text", e.Model())
	assert.Equal(t, 768, e.Dimension())
}

func TestEmbedDimensionMismatch(t *testing.T) {
	e := NewWithClient(&fakeClient{dimension: 384}, "nomic-embed-text", 768)

	_, err := e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
}

func TestEmbedBatch(t *testing.T) {
	e := NewWithClient(&fakeClient{dimension: 768}, "nomic-embed-text", 768)

	vectors, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for _, v := range vectors {
		assert.Len(t, v, 768)
	}
}

func TestEmbedBatchEmpty(t *testing.T) {
	client := &fakeClient{dimension: 768}
	e := NewWithClient(client, "nomic-embed-text", 768)

	vectors, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Zero(t, client.calls, "empty batch must not call the endpoint")
}

func TestEmbedBatchDimensionMismatch(t *testing.T) {
	e := NewWithClient(&fakeClient{dimension: 100}, "nomic-embed-text", 768)

	_, err := e.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
}

func TestEmbedPropagatesErrors(t *testing.T) {
	wantErr := errors.New("connection refused")
	e := NewWithClient(&fakeClient{err: wantErr}, "nomic-embed-text", 768)

	_, err := e.Embed(context.Background(), "hello")
	require.ErrorIs(t, err, wantErr)
}

func TestPrepareText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"user mention", "ping <@U123ABC> please", "ping @user please"},
		{"channel mention", "see <#C123|general>", "see #general"},
		{"titled url", "read <https://example.com/doc|the doc>", "read the doc (https://example.com/doc)"},
		{"bare url", "see <https://example.com>", "see https://example.com"},
		{"code block", "fix:\n```\nfoo()\n```\ndone", "fix: [code block] done"},
		{"inline code", "run `make test` now", "run [code] now"},
		{"whitespace", "a\t b\n\nc", "a b c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PrepareText(tt.in))
		})
	}
}
