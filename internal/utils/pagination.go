// internal/utils/pagination.go
package utils

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/javajoker/imi-licensing/internal/apperrors"
	"github.com/javajoker/imi-licensing/internal/catalog"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// GetPaginationParams reads page, pageSize (or limit), sort and order. Values
// are passed through so the catalog engine reports out of range pages.
func GetPaginationParams(c *gin.Context) (catalog.PageRequest, catalog.Sort, error) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		return catalog.PageRequest{}, catalog.Sort{}, fieldError("page", "Page must be a number")
	}

	sizeParam := c.Query("pageSize")
	if sizeParam == "" {
		sizeParam = c.DefaultQuery("limit", strconv.Itoa(DefaultPageSize))
	}
	pageSize, err := strconv.Atoi(sizeParam)
	if err != nil {
		return catalog.PageRequest{}, catalog.Sort{}, fieldError("pageSize", "Page size must be a number")
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	sort := catalog.Sort{
		Key:       catalog.SortKey(c.Query("sort")),
		Direction: catalog.Direction(strings.ToLower(c.Query("order"))),
	}
	return catalog.PageRequest{Page: page, PageSize: pageSize}, sort, nil
}

// GetCatalogFilter reads the catalog predicates from the query string. tags
// may repeat or be comma separated.
func GetCatalogFilter(c *gin.Context) (catalog.Filter, error) {
	filter := catalog.Filter{
		Category:  c.Query("category"),
		Search:    c.Query("search"),
		Status:    c.Query("status"),
		CreatorID: c.Query("creator_id"),
	}

	for _, raw := range c.QueryArray("tags") {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filter.Tags = append(filter.Tags, tag)
			}
		}
	}

	var err error
	if filter.PriceMin, err = decimalQuery(c, "price_min"); err != nil {
		return filter, err
	}
	if filter.PriceMax, err = decimalQuery(c, "price_max"); err != nil {
		return filter, err
	}
	return filter, nil
}

func decimalQuery(c *gin.Context, name string) (*decimal.Decimal, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fieldError(name, name+" must be a decimal number")
	}
	return &d, nil
}

func fieldError(field, message string) error {
	return apperrors.ValidationFields("invalid query", []apperrors.FieldError{{Field: field, Message: message}})
}

// PaginatedResponse writes a catalog page in the success envelope with the
// pagination headers set.
func PaginatedResponse[T any](c *gin.Context, page *catalog.Page[T]) {
	c.Header("X-Total-Count", strconv.Itoa(page.Total))
	c.Header("X-Page", strconv.Itoa(page.Page))
	c.Header("X-Per-Page", strconv.Itoa(page.PageSize))
	c.Header("X-Total-Pages", strconv.Itoa(page.TotalPages))
	SuccessResponse(c, page)
}
