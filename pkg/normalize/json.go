package normalize

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

var (
	pairNameKeys  = []string{"name", "parameter", "nama", "label", "indikator"}
	pairValueKeys = []string{"score", "skor", "value", "nilai"}
)

// leadingJSON flattens a JSON object that opens the response, optionally
// inside a code fence, into label/value lines. Nested objects and arrays
// become headed blocks closed by an empty "#" heading. Text after the object
// is returned as rest.
func (m *matcher) leadingJSON(raw string) (lines []string, rest string, ok bool) {
	s := strings.TrimSpace(raw)
	fenced := false
	if strings.HasPrefix(s, "```") {
		nl := strings.IndexByte(s, '\n')
		if nl < 0 {
			return nil, "", false
		}
		s, fenced = strings.TrimSpace(s[nl+1:]), true
	}
	if !strings.HasPrefix(s, "{") {
		return nil, "", false
	}

	dec := json.NewDecoder(strings.NewReader(s))
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, "", false
	}
	rest = strings.TrimSpace(s[dec.InputOffset():])
	if fenced {
		rest = strings.TrimPrefix(rest, "```")
	}
	m.flattenObject(obj, &lines)
	return lines, rest, true
}

// blockLines flattens a fenced block holding a single JSON object. Any other
// block is returned unchanged.
func (m *matcher) blockLines(block []string) []string {
	obj, ok := decodeObject(strings.TrimSpace(strings.Join(block, "\n")))
	if !ok {
		return block
	}
	var out []string
	m.flattenObject(obj, &out)
	return out
}

func decodeObject(s string) (map[string]any, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func (m *matcher) flattenObject(obj map[string]any, out *[]string) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := obj[k].(type) {
		case nil:
		case map[string]any:
			// {"mata": {"score": 8, "note": "..."}} reads as "mata: 8" unless
			// the key names a field or section of its own.
			if score, ok := pairValue(v); ok && !m.isGroup(k) {
				*out = append(*out, k+": "+score)
				continue
			}
			*out = append(*out, "# "+k)
			m.flattenObject(v, out)
			*out = append(*out, "#")
		case []any:
			*out = append(*out, "# "+k)
			for _, el := range v {
				m.flattenElement(el, out)
			}
			*out = append(*out, "#")
		default:
			*out = append(*out, k+": "+scalar(v))
		}
	}
}

func (m *matcher) flattenElement(el any, out *[]string) {
	switch e := el.(type) {
	case nil:
	case map[string]any:
		name, hasName := pairName(e)
		score, hasScore := pairValue(e)
		if hasName && hasScore {
			*out = append(*out, name+": "+score)
			return
		}
		m.flattenObject(e, out)
	case []any:
		for _, inner := range e {
			m.flattenElement(inner, out)
		}
	default:
		*out = append(*out, scalar(e))
	}
}

func (m *matcher) isGroup(key string) bool {
	k := m.resolve(key).kind
	return k == targetField || k == targetSection
}

func pairName(m map[string]any) (string, bool) {
	for _, k := range pairNameKeys {
		if s, ok := m[k].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func pairValue(m map[string]any) (string, bool) {
	for _, k := range pairValueKeys {
		switch v := m[k].(type) {
		case nil:
		case map[string]any, []any:
		default:
			return scalar(v), true
		}
	}
	return "", false
}

func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}
