package devserver

import (
	"sort"
	"strconv"
	"strings"
)

// Lesson is one entry of the development lesson catalog.
type Lesson struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Subject    string `json:"subject"`
	Difficulty int    `json:"difficulty"`
	Minutes    int    `json:"minutes"`
}

// Catalog returns the static lesson list served by /api/lessons.
func Catalog() []Lesson {
	return []Lesson{
		{ID: "math-fractions", Title: "Fractions on a number line", Subject: "math", Difficulty: 3, Minutes: 20},
		{ID: "math-decimals", Title: "Decimals and place value", Subject: "math", Difficulty: 4, Minutes: 25},
		{ID: "math-area", Title: "Area of rectangles", Subject: "math", Difficulty: 2, Minutes: 15},
		{ID: "math-equations", Title: "One-step equations", Subject: "math", Difficulty: 6, Minutes: 30},
		{ID: "sci-plants", Title: "How plants make food", Subject: "science", Difficulty: 3, Minutes: 20},
		{ID: "sci-circuits", Title: "Simple circuits", Subject: "science", Difficulty: 5, Minutes: 35},
		{ID: "sci-weather", Title: "Reading a weather map", Subject: "science", Difficulty: 4, Minutes: 20},
		{ID: "read-inference", Title: "Making inferences", Subject: "reading", Difficulty: 5, Minutes: 25},
		{ID: "read-summary", Title: "Writing a summary", Subject: "reading", Difficulty: 4, Minutes: 20},
		{ID: "read-poetry", Title: "Rhythm in poetry", Subject: "reading", Difficulty: 3, Minutes: 15},
		{ID: "hist-rivers", Title: "River civilisations", Subject: "history", Difficulty: 5, Minutes: 30},
		{ID: "hist-maps", Title: "Old maps and new maps", Subject: "history", Difficulty: 2, Minutes: 15},
	}
}

// lessonQuery is the parsed query string of a list request.
type lessonQuery struct {
	search    string
	sortBy    string
	sortOrder string
	page      int
	perPage   int
	filters   map[string]string
}

var reservedParams = map[string]bool{
	"search": true, "sort_by": true, "sort_order": true, "page": true, "per_page": true,
}

func parseLessonQuery(values map[string][]string) lessonQuery {
	q := lessonQuery{page: 1, perPage: 20, filters: map[string]string{}}
	get := func(k string) string {
		if v := values[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	q.search = strings.ToLower(strings.TrimSpace(get("search")))
	q.sortBy = get("sort_by")
	q.sortOrder = strings.ToLower(get("sort_order"))
	if n, err := strconv.Atoi(get("page")); err == nil && n > 0 {
		q.page = n
	}
	if n, err := strconv.Atoi(get("per_page")); err == nil && n > 0 {
		q.perPage = n
	}
	for k, v := range values {
		if !reservedParams[k] && len(v) > 0 && v[0] != "" {
			q.filters[k] = v[0]
		}
	}
	return q
}

// listLessons applies search, filters, sorting and paging. It returns the
// page and the number of matches before paging.
func listLessons(all []Lesson, q lessonQuery) ([]Lesson, int) {
	var matched []Lesson
	for _, l := range all {
		if q.search != "" && !strings.Contains(strings.ToLower(l.Title), q.search) {
			continue
		}
		if !matchesFilters(l, q.filters) {
			continue
		}
		matched = append(matched, l)
	}

	less := lessonLess(q.sortBy)
	sort.SliceStable(matched, func(i, j int) bool {
		if q.sortOrder == "desc" {
			return less(matched[j], matched[i])
		}
		return less(matched[i], matched[j])
	})

	total := len(matched)
	start := (q.page - 1) * q.perPage
	if start >= total {
		return []Lesson{}, total
	}
	end := start + q.perPage
	if end > total {
		end = total
	}
	return matched[start:end], total
}

func matchesFilters(l Lesson, filters map[string]string) bool {
	for k, v := range filters {
		switch k {
		case "subject":
			if l.Subject != v {
				return false
			}
		case "difficulty":
			if strconv.Itoa(l.Difficulty) != v {
				return false
			}
		}
	}
	return true
}

func lessonLess(field string) func(a, b Lesson) bool {
	switch field {
	case "title":
		return func(a, b Lesson) bool { return a.Title < b.Title }
	case "subject":
		return func(a, b Lesson) bool { return a.Subject < b.Subject }
	case "difficulty":
		return func(a, b Lesson) bool { return a.Difficulty < b.Difficulty }
	case "minutes":
		return func(a, b Lesson) bool { return a.Minutes < b.Minutes }
	default:
		return func(a, b Lesson) bool { return a.ID < b.ID }
	}
}
