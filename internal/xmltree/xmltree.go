// Package xmltree decodes XML into the loose map/list/string tree used for
// remote replies, and offers namespace- and case-insensitive navigation.
package xmltree

import (
	"fmt"
	"strings"

	"github.com/clbanning/mxj/v2"
)

// Decode parses an XML document. A single child element becomes a map or
// string, repeated elements become a []any, attributes are kept under
// "-name" keys and element text next to attributes under "#text".
// Namespace prefixes and xmlns declarations are dropped.
func Decode(b []byte) (map[string]any, error) {
	m, err := mxj.NewMapXml(b)
	if err != nil {
		return nil, fmt.Errorf("decode xml: %w", err)
	}
	out, _ := strip(map[string]any(m)).(map[string]any)
	return out, nil
}

// LooksLikeXML reports whether s starts like an XML document or element.
func LooksLikeXML(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) > 2 && s[0] == '<' && strings.HasSuffix(s, ">")
}

func strip(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if k == "-xmlns" || strings.HasPrefix(k, "-xmlns:") {
				continue
			}
			out[LocalName(k)] = strip(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = strip(val)
		}
		return out
	default:
		return v
	}
}

// LocalName drops a namespace prefix, keeping the attribute marker.
func LocalName(k string) string {
	i := strings.LastIndexByte(k, ':')
	if i < 0 {
		return k
	}
	if strings.HasPrefix(k, "-") {
		return "-" + k[i+1:]
	}
	return k[i+1:]
}

// Lookup finds a child by name, ignoring case.
func Lookup(m map[string]any, name string) any {
	if m == nil {
		return nil
	}
	if v, ok := m[name]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

func AsMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// AsList wraps a single value as a one-element list.
func AsList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

// Text returns the trimmed character data of a leaf.
func Text(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		if s, ok := t["#text"].(string); ok {
			return strings.TrimSpace(s)
		}
	case []any:
		if len(t) > 0 {
			return Text(t[0])
		}
	}
	return ""
}
