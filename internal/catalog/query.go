// internal/catalog/query.go
package catalog

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/javajoker/imi-licensing/internal/apperrors"
)

type SortKey string

const (
	SortCreatedAt  SortKey = "created_at"
	SortTitle      SortKey = "title"
	SortPrice      SortKey = "price"
	SortViewCount  SortKey = "view_count"
	SortPopularity SortKey = "popularity"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Fields is the projection of a record the engine filters and sorts on.
type Fields struct {
	Title       string
	Description string
	Category    string
	Status      string
	Price       decimal.Decimal
	HasPrice    bool
	CreatedAt   time.Time
	ViewCount   int64
	Popularity  int64
	Tags        []string
	CreatorID   string
}

type Item interface {
	CatalogFields() Fields
}

type Filter struct {
	Category  string
	Search    string
	Status    string
	PriceMin  *decimal.Decimal
	PriceMax  *decimal.Decimal
	CreatorID string
	Tags      []string
}

type Sort struct {
	Key       SortKey
	Direction Direction
}

type PageRequest struct {
	Page     int
	PageSize int
}

type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func (s Sort) normalize() (Sort, error) {
	if s.Key == "" {
		s.Key = SortCreatedAt
	}
	switch s.Key {
	case SortCreatedAt, SortTitle, SortPrice, SortViewCount, SortPopularity:
	default:
		return s, apperrors.Validation("unknown sort key %q", s.Key)
	}

	if s.Direction == "" {
		s.Direction = Desc
	}
	if s.Direction != Asc && s.Direction != Desc {
		return s, apperrors.Validation("unknown sort direction %q", s.Direction)
	}
	return s, nil
}

func (p PageRequest) validate() error {
	if p.Page < 1 {
		return apperrors.Validation("page must be at least 1, got %d", p.Page)
	}
	if p.PageSize <= 0 {
		return apperrors.Validation("page size must be positive, got %d", p.PageSize)
	}
	return nil
}

// Query filters, sorts and paginates items. The input slice is never modified.
func Query[T Item](items []T, filter Filter, sort Sort, page PageRequest) (Page[T], error) {
	if err := page.validate(); err != nil {
		return Page[T]{}, err
	}
	sort, err := sort.normalize()
	if err != nil {
		return Page[T]{}, err
	}

	type entry struct {
		item   T
		fields Fields
	}

	matched := make([]entry, 0, len(items))
	for _, it := range items {
		f := it.CatalogFields()
		if filter.matches(f) {
			matched = append(matched, entry{item: it, fields: f})
		}
	}

	slices.SortStableFunc(matched, func(a, b entry) int {
		return compare(a.fields, b.fields, sort)
	})

	total := len(matched)
	result := Page[T]{
		Items:      []T{},
		Page:       page.Page,
		PageSize:   page.PageSize,
		Total:      total,
		TotalPages: (total + page.PageSize - 1) / page.PageSize,
	}

	start := (page.Page - 1) * page.PageSize
	if start >= total {
		return result, nil
	}
	end := min(start+page.PageSize, total)
	for _, e := range matched[start:end] {
		result.Items = append(result.Items, e.item)
	}
	return result, nil
}

func (f Filter) matches(fields Fields) bool {
	if f.Category != "" && fields.Category != f.Category {
		return false
	}
	if f.Status != "" && fields.Status != f.Status {
		return false
	}
	if f.CreatorID != "" && fields.CreatorID != f.CreatorID {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(fields.Title), needle) &&
			!strings.Contains(strings.ToLower(fields.Description), needle) {
			return false
		}
	}
	if f.PriceMin != nil || f.PriceMax != nil {
		if !fields.HasPrice {
			return false
		}
		if f.PriceMin != nil && fields.Price.LessThan(*f.PriceMin) {
			return false
		}
		if f.PriceMax != nil && fields.Price.GreaterThan(*f.PriceMax) {
			return false
		}
	}
	if len(f.Tags) > 0 && !slices.ContainsFunc(f.Tags, func(tag string) bool {
		return slices.Contains(fields.Tags, tag)
	}) {
		return false
	}
	return true
}

// compare orders two records by the sort key. Records without a price always
// sort after priced ones.
func compare(a, b Fields, s Sort) int {
	if s.Key == SortPrice && a.HasPrice != b.HasPrice {
		if a.HasPrice {
			return -1
		}
		return 1
	}

	var c int
	switch s.Key {
	case SortCreatedAt:
		c = a.CreatedAt.Compare(b.CreatedAt)
	case SortTitle:
		c = strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	case SortPrice:
		c = a.Price.Cmp(b.Price)
	case SortViewCount:
		c = cmp.Compare(a.ViewCount, b.ViewCount)
	case SortPopularity:
		c = cmp.Compare(a.Popularity, b.Popularity)
	}

	if s.Direction == Desc {
		return -c
	}
	return c
}
