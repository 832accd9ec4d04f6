package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

var (
	DefaultMinPrice = decimal.Zero
	DefaultMaxPrice = decimal.NewFromInt(50000)
)

// ErrPageNotFound is returned when currentPage is past the last page.
var ErrPageNotFound = errors.New("invalid page")

// InvalidParamsError lists every rejected query parameter.
type InvalidParamsError struct {
	Fields map[string][]string
}

func (e *InvalidParamsError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	return "invalid catalog parameters: " + strings.Join(keys, ", ")
}

func (e *InvalidParamsError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Params is a parsed catalog query.
type Params struct {
	Name         string
	MinPrice     decimal.Decimal
	MaxPrice     decimal.Decimal
	FreeDelivery bool
	Available    bool
	CategoryID   *uint
	TagIDs       []uint
	SortBy       string
	Ascending    bool
	Page         int
	Limit        int
}

// sortKeys are the accepted values of the sort parameter.
var sortKeys = map[string]struct{}{
	"date": {}, "title": {}, "count": {}, "rating": {}, "reviews": {}, "price": {},
}

// ParseParams reads the storefront query string. Blank values take their
// defaults; malformed ones are reported together in an InvalidParamsError.
func ParseParams(q url.Values) (Params, error) {
	p := Params{
		Name:     strings.TrimSpace(q.Get("filter[name]")),
		MinPrice: DefaultMinPrice,
		MaxPrice: DefaultMaxPrice,
		SortBy:   "date",
		Page:     1,
		Limit:    DefaultLimit,
	}
	invalid := &InvalidParamsError{}

	if v := q.Get("filter[minPrice]"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil || d.IsNegative() {
			invalid.add("filter[minPrice]", "Enter a valid non-negative number.")
		} else {
			p.MinPrice = d
		}
	}
	if v := q.Get("filter[maxPrice]"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil || d.IsNegative() {
			invalid.add("filter[maxPrice]", "Enter a valid non-negative number.")
		} else {
			p.MaxPrice = d
		}
	}
	if p.MinPrice.GreaterThan(p.MaxPrice) {
		invalid.add("filter[minPrice]", "Minimum price must not exceed maximum price.")
	}

	p.FreeDelivery = parseFlag(q.Get("filter[freeDelivery]"), "filter[freeDelivery]", invalid)
	p.Available = parseFlag(q.Get("filter[available]"), "filter[available]", invalid)

	if v := q.Get("category"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil || id == 0 {
			invalid.add("category", "Enter a valid category id.")
		} else {
			cid := uint(id)
			p.CategoryID = &cid
		}
	}

	seen := map[uint]struct{}{}
	for _, v := range q["tags[]"] {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil || id == 0 {
			invalid.add("tags", fmt.Sprintf("%q is not a valid tag id.", v))
			continue
		}
		if _, dup := seen[uint(id)]; dup {
			continue
		}
		seen[uint(id)] = struct{}{}
		p.TagIDs = append(p.TagIDs, uint(id))
	}

	if v := q.Get("sort"); v != "" {
		if _, ok := sortKeys[v]; !ok {
			invalid.add("sort", fmt.Sprintf("%q is not a sortable field.", v))
		} else {
			p.SortBy = v
		}
	}
	p.Ascending = q.Get("sortType") == "inc"

	if v := q.Get("currentPage"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			invalid.add("currentPage", "Enter a positive page number.")
		} else {
			p.Page = n
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			invalid.add("limit", "Enter a positive page size.")
		} else {
			p.Limit = min(n, MaxLimit)
		}
	}

	if len(invalid.Fields) > 0 {
		return p, invalid
	}
	return p, nil
}

func parseFlag(v, field string, invalid *InvalidParamsError) bool {
	switch v {
	case "", "false":
		return false
	case "true":
		return true
	default:
		invalid.add(field, "Must be true or false.")
		return false
	}
}
