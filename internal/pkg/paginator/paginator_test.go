package paginator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paulexconde/surveyflow/internal/pkg/store"
)

type fakeStore struct {
	store.Datastorer[int]
	total   any
	queries []string
	args    [][]any
}

func (f *fakeStore) QueryRow(_ context.Context, query string, args ...any) (any, error) {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	return f.total, nil
}

func (f *fakeStore) Select(_ context.Context, query string, args ...any) ([]int, error) {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	return []int{1, 2}, nil
}

func TestPaginateQuery(t *testing.T) {
	fs := &fakeStore{total: int64(25)}
	p := NewPaginator[int](fs)

	res, err := p.PaginateQuery(context.Background(), "SELECT id FROM t WHERE survey_id = $1", []any{7}, 2, 10)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, res.Items)
	assert.Equal(t, 2, res.CurrentPage)
	assert.Equal(t, 3, res.TotalPages)
	assert.Equal(t, 25, res.TotalItems)
	require.NotNil(t, res.PrevPage)
	require.NotNil(t, res.NextPage)
	assert.Equal(t, 1, *res.PrevPage)
	assert.Equal(t, 3, *res.NextPage)

	require.Len(t, fs.queries, 2)
	assert.True(t, strings.HasPrefix(fs.queries[0], "SELECT COUNT(*) FROM (SELECT id FROM t"))
	assert.True(t, strings.HasSuffix(fs.queries[1], "LIMIT $2 OFFSET $3"))
	assert.Equal(t, []any{7, 10, 10}, fs.args[1])
}

func TestPaginateQuery_Bounds(t *testing.T) {
	fs := &fakeStore{total: int64(3)}
	p := NewPaginator[int](fs)

	res, err := p.PaginateQuery(context.Background(), "SELECT 1", nil, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, res.CurrentPage)
	assert.Equal(t, 1, res.TotalPages)
	assert.Nil(t, res.PrevPage)
	assert.Nil(t, res.NextPage)
	assert.Equal(t, []any{MaxLimit, 0}, fs.args[1])
}

func TestPaginateQuery_UnexpectedCountType(t *testing.T) {
	p := NewPaginator[int](&fakeStore{total: "many"})
	_, err := p.PaginateQuery(context.Background(), "SELECT 1", nil, 1, 10)
	assert.ErrorContains(t, err, "expected int for total count")
}

func TestWindow(t *testing.T) {
	tests := []struct {
		name              string
		page, limit       int
		wantPage, wantLim int
		wantOffset        int
	}{
		{"defaults", 0, 0, 1, DefaultLimit, 0},
		{"third page", 3, 20, 3, 20, 40},
		{"capped limit", 2, 500, 2, MaxLimit, MaxLimit},
		{"negative page", -4, 5, 1, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, limit, offset := Window(tt.page, tt.limit)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.wantLim, limit)
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}
