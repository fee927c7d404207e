package store

import (
	"cmp"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// ApplyUpdates sets each nested path of body, creating intermediate objects
// as needed. Fields not named by an update keep their value.
func ApplyUpdates(body json.RawMessage, updates []FieldUpdate) (json.RawMessage, error) {
	doc := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("decode body: %w", err)
		}
	}

	for _, u := range updates {
		if len(u.Path) == 0 {
			return nil, fmt.Errorf("empty field path")
		}
		value, err := normalize(u.Value)
		if err != nil {
			return nil, err
		}

		node := doc
		for _, key := range u.Path[:len(u.Path)-1] {
			child, ok := node[key].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[key] = child
			}
			node = child
		}
		node[u.Path[len(u.Path)-1]] = value
	}
	return json.Marshal(doc)
}

// normalize round-trips v through JSON so that values compare the same way
// they will once stored.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func fields(d Document) map[string]any {
	m := map[string]any{}
	_ = json.Unmarshal(d.Data, &m)
	return m
}

// Matches reports whether d satisfies every filter of q.
func Matches(d Document, q Query) bool {
	m := fields(d)
	for _, f := range q.Filters {
		got, ok := m[f.Field]
		if !ok {
			return false
		}
		want, err := normalize(f.Value)
		if err != nil {
			return false
		}
		switch f.Op {
		case OpEq:
			if !reflect.DeepEqual(got, want) {
				return false
			}
		case OpGte:
			c, ok := compare(got, want)
			if !ok || c < 0 {
				return false
			}
		case OpLte:
			c, ok := compare(got, want)
			if !ok || c > 0 {
				return false
			}
		case OpPrefix:
			s, ok1 := got.(string)
			p, ok2 := want.(string)
			if !ok1 || !ok2 || !strings.HasPrefix(s, p) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		return cmp.Compare(x, y), true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return cmp.Compare(x, y), true
	}
	return 0, false
}

// Apply filters, orders and limits docs in memory. Documents lacking the
// order field sort last.
func Apply(docs []Document, q Query) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if Matches(d, q) {
			out = append(out, d)
		}
	}

	if q.OrderBy != "" {
		slices.SortStableFunc(out, func(a, b Document) int {
			va, okA := fields(a)[q.OrderBy]
			vb, okB := fields(b)[q.OrderBy]
			switch {
			case !okA && !okB:
				return 0
			case !okA:
				return 1
			case !okB:
				return -1
			}
			c, _ := compare(va, vb)
			if q.Desc {
				return -c
			}
			return c
		})
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
