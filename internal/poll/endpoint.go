package poll

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Endpoint is an immutable resource address: a path plus query parameters.
// Parameters keep their insertion order on the wire, but two endpoints with
// the same parameters in a different order are Equal.
type Endpoint struct {
	path string
	keys []string
	vals map[string]string
}

// NewEndpoint returns an endpoint for path with no parameters.
func NewEndpoint(path string) Endpoint {
	return Endpoint{path: path}
}

// With returns a copy of e with key set to v. Setting an existing key keeps
// its original position. v should be a string, a number or a bool.
func (e Endpoint) With(key string, v interface{}) Endpoint {
	out := Endpoint{
		path: e.path,
		keys: make([]string, len(e.keys), len(e.keys)+1),
		vals: make(map[string]string, len(e.vals)+1),
	}
	copy(out.keys, e.keys)
	for k, val := range e.vals {
		out.vals[k] = val
	}
	if _, ok := out.vals[key]; !ok {
		out.keys = append(out.keys, key)
	}
	out.vals[key] = formatValue(v)
	return out
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Path returns the endpoint's path without a query.
func (e Endpoint) Path() string { return e.path }

// Get returns the value stored for key.
func (e Endpoint) Get(key string) (string, bool) {
	v, ok := e.vals[key]
	return v, ok
}

// Len returns the number of query parameters.
func (e Endpoint) Len() int { return len(e.keys) }

// String renders path and query in insertion order.
func (e Endpoint) String() string {
	return e.render(e.keys)
}

// Key renders path and query with sorted parameter names. It identifies the
// resource regardless of insertion order.
func (e Endpoint) Key() string {
	keys := append([]string(nil), e.keys...)
	sort.Strings(keys)
	return e.render(keys)
}

// Equal reports whether e and o address the same resource.
func (e Endpoint) Equal(o Endpoint) bool {
	return e.Key() == o.Key()
}

func (e Endpoint) render(keys []string) string {
	if len(keys) == 0 {
		return e.path
	}
	var b strings.Builder
	b.WriteString(e.path)
	b.WriteByte('?')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(e.vals[k]))
	}
	return b.String()
}

// ListQuery holds the paging, sorting and filtering inputs of a list view.
type ListQuery struct {
	Search    string
	SortBy    string
	SortOrder string
	Page      int
	PerPage   int
	Filters   map[string]interface{}
}

// Endpoint builds the list endpoint for path. The search parameter is always
// present; empty sort fields and empty filter values are left out. Filters
// follow the fixed parameters in key order.
func (q ListQuery) Endpoint(path string) Endpoint {
	e := NewEndpoint(path).With("search", q.Search)
	if q.SortBy != "" {
		e = e.With("sort_by", q.SortBy)
	}
	if q.SortOrder != "" {
		e = e.With("sort_order", q.SortOrder)
	}
	if q.Page > 0 {
		e = e.With("page", q.Page)
	}
	if q.PerPage > 0 {
		e = e.With("per_page", q.PerPage)
	}

	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := q.Filters[k]
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		e = e.With(k, v)
	}
	return e
}
