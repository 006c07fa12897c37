// accolade/pkg/archive/filter.go

package archive

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FilterKeys is the query parameter vocabulary accepted by ParseFilter.
var FilterKeys = []string{
	"topics", "not_topics",
	"categories", "not_categories",
	"users", "not_users",
	"packages", "not_packages",
	"agents", "not_agents",
	"contains",
	"start", "end",
	"rows_per_page", "page", "order",
}

// Filter selects archived events. List criteria match any of their values;
// not_ criteria exclude events matching any of theirs.
type Filter struct {
	Topics        []string
	NotTopics     []string
	Categories    []string
	NotCategories []string
	Users         []string
	NotUsers      []string
	Packages      []string
	NotPackages   []string
	Agents        []string
	NotAgents     []string
	Contains      []string

	Start time.Time
	End   time.Time

	// RowsPerPage of zero returns every row from Query.
	RowsPerPage int
	Page        int
	Order       string
}

// IsFilterKey reports whether key belongs to FilterKeys.
func IsFilterKey(key string) bool {
	for _, k := range FilterKeys {
		if k == key {
			return true
		}
	}
	return false
}

// ParseFilter builds a Filter from evaluated getter values.
func ParseFilter(params map[string]any) (Filter, error) {
	var f Filter

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := params[key]
		var err error
		switch key {
		case "topics":
			f.Topics, err = toStrings(value)
		case "not_topics":
			f.NotTopics, err = toStrings(value)
		case "categories":
			f.Categories, err = toStrings(value)
		case "not_categories":
			f.NotCategories, err = toStrings(value)
		case "users":
			f.Users, err = toStrings(value)
		case "not_users":
			f.NotUsers, err = toStrings(value)
		case "packages":
			f.Packages, err = toStrings(value)
		case "not_packages":
			f.NotPackages, err = toStrings(value)
		case "agents":
			f.Agents, err = toStrings(value)
		case "not_agents":
			f.NotAgents, err = toStrings(value)
		case "contains":
			f.Contains, err = toStrings(value)
		case "start":
			f.Start, err = toTime(value)
		case "end":
			f.End, err = toTime(value)
		case "rows_per_page":
			f.RowsPerPage, err = toInt(value)
		case "page":
			f.Page, err = toInt(value)
		case "order":
			f.Order, err = toOrder(value)
		default:
			return Filter{}, fmt.Errorf("unknown filter key %q", key)
		}
		if err != nil {
			return Filter{}, fmt.Errorf("filter key %q: %w", key, err)
		}
	}
	return f, nil
}

func toStrings(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{t}, nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			values, err := toStrings(item)
			if err != nil {
				return nil, err
			}
			out = append(out, values...)
		}
		return out, nil
	}
	return []string{fmt.Sprint(v)}, nil
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t.UTC(), nil
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, err
		}
		return parsed.UTC(), nil
	case int:
		return time.Unix(int64(t), 0).UTC(), nil
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case float64:
		return time.Unix(int64(t), 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot use %T as a timestamp", v)
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case uint64:
		return int(t), nil
	case float64:
		return int(t), nil
	case string:
		return strconv.Atoi(t)
	}
	return 0, fmt.Errorf("cannot use %T as an integer", v)
}

func toOrder(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("cannot use %T as an order", v)
	}
	switch strings.ToLower(s) {
	case "asc", "":
		return "asc", nil
	case "desc":
		return "desc", nil
	}
	return "", fmt.Errorf("order must be asc or desc, not %q", s)
}
