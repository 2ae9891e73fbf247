// Package paginator pages through store queries, such as a survey's drafts listed for
// authors.
package paginator

import (
	"context"
	"fmt"

	"github.com/paulexconde/surveyflow/internal/pkg/store"
)

// Page is one page of rows along with the total row count and the neighbouring page numbers.
type Page[T any] struct {
	Items       []T  `json:"items"`
	CurrentPage int  `json:"current_page"`
	TotalPages  int  `json:"total_pages"`
	PrevPage    *int `json:"prev_page"`
	NextPage    *int `json:"next_page"`
	TotalItems  int  `json:"total_items"`
}

const (
	// DefaultLimit applies when the caller asks for no limit.
	DefaultLimit = 20
	// MaxLimit caps the page size a caller can ask for.
	MaxLimit = 100
)

// Window clamps a requested page and limit and returns them with the row offset of the page.
func Window(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case limit < 1:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return page, limit, (page - 1) * limit
}

type Paginator[T any] interface {
	// PaginateQuery pages through the rows of query. Placeholders in query must be
	// positional ($1, $2, ...) since LIMIT and OFFSET are appended after args.
	PaginateQuery(ctx context.Context, query string, args []any, page, limit int) (*Page[T], error)
}

type paginatorImpl[T any] struct {
	datastore store.Datastorer[T]
}

func NewPaginator[T any](ds store.Datastorer[T]) Paginator[T] {
	return &paginatorImpl[T]{datastore: ds}
}

func (p *paginatorImpl[T]) PaginateQuery(ctx context.Context, query string, args []any, page, limit int) (*Page[T], error) {
	page, limit, offset := Window(page, limit)

	total, err := p.count(ctx, query, args)
	if err != nil {
		return nil, err
	}

	pageQuery := fmt.Sprintf("%s LIMIT $%d OFFSET $%d", query, len(args)+1, len(args)+2)
	items, err := p.datastore.Select(ctx, pageQuery, append(append([]any{}, args...), limit, offset)...)
	if err != nil {
		return nil, err
	}

	return newPage(items, page, limit, total), nil
}

func (p *paginatorImpl[T]) count(ctx context.Context, query string, args []any) (int, error) {
	raw, err := p.datastore.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS total_count", query), args...)
	if err != nil {
		return 0, err
	}

	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("expected int for total count, got %T", raw)
	}
}

func newPage[T any](items []T, page, limit, total int) *Page[T] {
	res := &Page[T]{
		Items:       items,
		CurrentPage: page,
		TotalPages:  (total + limit - 1) / limit,
		TotalItems:  total,
	}
	if page > 1 {
		prev := page - 1
		res.PrevPage = &prev
	}
	if page < res.TotalPages {
		next := page + 1
		res.NextPage = &next
	}
	return res
}
