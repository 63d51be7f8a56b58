package poll

import "testing"

func TestEndpointString(t *testing.T) {
	tests := []struct {
		name string
		ep   Endpoint
		want string
	}{
		{"bare", NewEndpoint("/items"), "/items"},
		{"insertion order", NewEndpoint("/items").With("b", 1).With("a", "x"), "/items?b=1&a=x"},
		{"replace keeps position", NewEndpoint("/items").With("a", 1).With("b", 2).With("a", 3), "/items?a=3&b=2"},
		{"types", NewEndpoint("/x").With("f", 1.5).With("ok", true).With("n", int64(7)), "/x?f=1.5&ok=true&n=7"},
		{"escaping", NewEndpoint("/x").With("q", "a b&c"), "/x?q=a+b%26c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ep.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEndpointImmutable(t *testing.T) {
	base := NewEndpoint("/x").With("a", 1)
	_ = base.With("b", 2)
	_ = base.With("a", 9)
	if got := base.String(); got != "/x?a=1" {
		t.Errorf("base mutated: %q", got)
	}
}

func TestEndpointEqual(t *testing.T) {
	a := NewEndpoint("/x").With("a", 1).With("b", 2)
	b := NewEndpoint("/x").With("b", 2).With("a", 1)
	if !a.Equal(b) {
		t.Errorf("%s should equal %s", a, b)
	}
	if a.Key() != "/x?a=1&b=2" {
		t.Errorf("Key() = %q", a.Key())
	}
	if a.Equal(b.With("a", 2)) {
		t.Error("different values compared equal")
	}
	if a.Equal(NewEndpoint("/y").With("a", 1).With("b", 2)) {
		t.Error("different paths compared equal")
	}
}

func TestListQueryEndpoint(t *testing.T) {
	tests := []struct {
		name string
		q    ListQuery
		want string
	}{
		{"empty search kept", ListQuery{Page: 1, PerPage: 20}, "/items?search=&page=1&per_page=20"},
		{"sorted", ListQuery{Search: "frac", SortBy: "title", SortOrder: "desc", Page: 2, PerPage: 10}, "/items?search=frac&sort_by=title&sort_order=desc&page=2&per_page=10"},
		{"filters", ListQuery{Page: 1, PerPage: 5, Filters: map[string]interface{}{
			"subject": "math", "grade": 4, "empty": "", "none": nil, "done": false,
		}}, "/items?search=&page=1&per_page=5&done=false&grade=4&subject=math"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.Endpoint("/items").String(); got != tt.want {
				t.Errorf("Endpoint() = %q, want %q", got, tt.want)
			}
		})
	}
}
