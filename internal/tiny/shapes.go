package tiny

// The v2 API wraps records differently per response type: a list of single-key
// wrapper objects ([{"produto": {...}}]), a named subfield holding a list or a
// single object, or the map itself being the record. ExtractRecords tries each
// shape in that order and fails closed when none matches; callers log and skip.
func ExtractRecords(v any, key string) ([]map[string]any, bool) {
	if records, ok := matchList(v, key); ok {
		return records, true
	}
	if m, ok := v.(map[string]any); ok {
		if inner, present := m[key]; present {
			if records, ok := matchList(inner, key); ok {
				return records, true
			}
			if record, ok := inner.(map[string]any); ok {
				return []map[string]any{record}, true
			}
		}
		if len(m) > 0 {
			return []map[string]any{m}, true
		}
	}
	return nil, false
}

func matchList(v any, key string) ([]map[string]any, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	records := make([]map[string]any, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		records = append(records, unwrap(m, key))
	}
	return records, true
}

// unwrap peels the single-key {"produto": {...}} wrapper when present.
func unwrap(m map[string]any, key string) map[string]any {
	if inner, ok := m[key].(map[string]any); ok && len(m) == 1 {
		return inner
	}
	return m
}
