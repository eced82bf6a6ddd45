package upload

import (
	"sort"
	"strconv"
)

// Reshape turns every multi-file field of files from a struct of arrays
// ({"name": [a, b], "size": [1, 2]}) into an array of structs
// ([{"name": a, "size": 1}, {"name": b, "size": 2}]). Fields holding a
// single file's properties are returned as they are.
func Reshape(files map[string]any) map[string]any {
	out := make(map[string]any, len(files))
	for field, sub := range files {
		props, ok := sub.(map[string]any)
		if !ok || !isMultiFile(props) {
			out[field] = sub
			continue
		}
		out[field] = transpose(props)
	}
	return out
}

// isMultiFile reports whether every property of a submission is a sequence.
func isMultiFile(props map[string]any) bool {
	if len(props) == 0 {
		return false
	}
	for _, v := range props {
		if _, ok := indexed(v); !ok {
			return false
		}
	}
	return true
}

// indexed returns the cells of a sequence value keyed by index. Both JSON
// arrays and objects keyed by decimal indices qualify.
func indexed(v any) (map[int]any, bool) {
	switch seq := v.(type) {
	case []any:
		cells := make(map[int]any, len(seq))
		for i, c := range seq {
			cells[i] = c
		}
		return cells, true
	case map[string]any:
		if len(seq) == 0 {
			return nil, false
		}
		cells := make(map[int]any, len(seq))
		for k, c := range seq {
			i, err := strconv.Atoi(k)
			if err != nil || i < 0 {
				return nil, false
			}
			cells[i] = c
		}
		return cells, true
	}
	return nil, false
}

func transpose(props map[string]any) []map[string]any {
	rows := make(map[int]map[string]any)
	for prop, v := range props {
		cells, _ := indexed(v)
		for i, c := range cells {
			row, ok := rows[i]
			if !ok {
				row = make(map[string]any, len(props))
				rows[i] = row
			}
			row[prop] = c
		}
	}

	idx := make([]int, 0, len(rows))
	for i := range rows {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	out := make([]map[string]any, 0, len(idx))
	for _, i := range idx {
		out = append(out, rows[i])
	}
	return out
}
