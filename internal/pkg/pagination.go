package pkg

import (
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/simp-lee/waterfall/internal/domain"
)

// PageLimits bounds what ParsePageRequest accepts for one endpoint.
type PageLimits struct {
	DefaultSize int
	MaxSize     int
	DefaultSort string
}

// DefaultPageLimits are used by list endpoints without their own limits.
var DefaultPageLimits = PageLimits{
	DefaultSize: 20,
	MaxSize:     100,
	DefaultSort: "id:asc",
}

// reservedParams lists query parameter names used for pagination/sorting, not for filtering.
var reservedParams = map[string]bool{
	"page":      true,
	"page_size": true,
	"sort":      true,
}

// validFieldName matches only alphanumeric characters and underscores.
var validFieldName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParsePageRequest extracts a 1-based page, a clamped page size, sorting and
// filters from the query string. Zero fields of limits fall back to
// DefaultPageLimits.
func ParsePageRequest(c *gin.Context, limits PageLimits) domain.PageRequest {
	if limits.DefaultSize < 1 {
		limits.DefaultSize = DefaultPageLimits.DefaultSize
	}
	if limits.MaxSize < 1 {
		limits.MaxSize = DefaultPageLimits.MaxSize
	}
	if limits.DefaultSort == "" {
		limits.DefaultSort = DefaultPageLimits.DefaultSort
	}

	page, _ := strconv.Atoi(c.Query("page"))
	if page < 1 {
		page = 1
	}

	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	if pageSize < 1 {
		pageSize = limits.DefaultSize
	}
	pageSize = min(pageSize, limits.MaxSize)

	filter := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if reservedParams[key] {
			continue
		}
		if len(values) > 0 && values[0] != "" {
			filter[key] = values[0]
		}
	}

	return domain.PageRequest{
		Page:     page,
		PageSize: pageSize,
		Sort:     c.DefaultQuery("sort", limits.DefaultSort),
		Filter:   filter,
	}
}

// Paginate returns a GORM scope that applies LIMIT and OFFSET based on the page request.
func Paginate(req domain.PageRequest) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		offset := (req.Page - 1) * req.PageSize
		return db.Offset(offset).Limit(req.PageSize)
	}
}

// Sort returns a GORM scope that orders by the requested field and then by
// id ascending, so equal sort keys still page deterministically. Fields
// outside allowed, or not matching a plain identifier, are ignored.
func Sort(req domain.PageRequest, allowed []string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		field, direction, ok := parseSort(req.Sort)
		if ok && isAllowed(field, allowed) {
			db = db.Order(field + " " + direction)
			if field == "id" {
				return db
			}
		}
		return db.Order("id asc")
	}
}

func parseSort(s string) (field, direction string, ok bool) {
	field, direction, found := strings.Cut(s, ":")
	if !found {
		return "", "", false
	}
	field = strings.TrimSpace(field)
	direction = strings.ToLower(strings.TrimSpace(direction))
	if direction != "asc" && direction != "desc" {
		return "", "", false
	}
	if !validFieldName.MatchString(field) {
		return "", "", false
	}
	return field, direction, true
}

// Filter returns a GORM scope that applies WHERE conditions based on the page request filters.
// Only filter keys present in the allowed list are applied; others are silently ignored.
// Keys ending with "__like" produce a LIKE '%value%' condition; others use exact match.
func Filter(req domain.PageRequest, allowed []string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		for key, value := range req.Filter {
			field, like := strings.CutSuffix(key, "__like")
			if !validFieldName.MatchString(field) || !isAllowed(field, allowed) {
				continue
			}
			if like {
				db = db.Where(field+" LIKE ?", "%"+value+"%")
			} else {
				db = db.Where(field+" = ?", value)
			}
		}
		return db
	}
}

// NewPageResult creates a PageResult with computed TotalPages.
func NewPageResult[T any](items []T, total int64, req domain.PageRequest) *domain.PageResult[T] {
	totalPages := 0
	if req.PageSize > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(req.PageSize)))
	}

	if items == nil {
		items = []T{}
	}

	return &domain.PageResult[T]{
		Items:      items,
		Total:      total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: totalPages,
	}
}

// MapPageResult converts the items of a page, keeping its metadata.
func MapPageResult[T, U any](p *domain.PageResult[T], fn func(T) U) *domain.PageResult[U] {
	items := make([]U, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, fn(it))
	}
	return &domain.PageResult[U]{
		Items:      items,
		Total:      p.Total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages,
	}
}

func isAllowed(field string, allowed []string) bool {
	return slices.Contains(allowed, field)
}
