package app

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Record is one normalized remote record: a JSON object whose fields are
// looked up by dot path, ignoring case and namespace-free XML conventions
// ("#text" leaves, "-attr" attributes).
type Record struct {
	data gjson.Result
}

func NewRecord(raw string) Record { return Record{data: gjson.Parse(raw)} }

func (r Record) Raw() string { return r.data.Raw }

func (r Record) Data() map[string]any {
	if m, ok := r.data.Value().(map[string]any); ok {
		return m
	}
	return nil
}

// Keys lists the element fields of the record in document order.
func (r Record) Keys() []string {
	var keys []string
	r.data.ForEach(func(k, _ gjson.Result) bool {
		if !strings.HasPrefix(k.String(), "-") && k.String() != "#text" {
			keys = append(keys, k.String())
		}
		return true
	})
	return keys
}

func (r Record) Get(path string) gjson.Result {
	cur := r.data
	for _, part := range strings.Split(path, ".") {
		cur = child(cur, part)
		if !cur.Exists() {
			return cur
		}
	}
	if cur.IsObject() {
		if t := cur.Get(`\#text`); t.Exists() {
			return t
		}
	}
	return cur
}

func child(v gjson.Result, name string) gjson.Result {
	if !v.IsObject() {
		return gjson.Result{}
	}
	var found gjson.Result
	v.ForEach(func(k, val gjson.Result) bool {
		if strings.EqualFold(k.String(), name) {
			found = val
			return false
		}
		return true
	})
	return found
}

func (r Record) StringForPath(path string) (string, bool) {
	result := r.Get(path)
	if !result.Exists() || result.Type == gjson.Null || result.IsObject() || result.IsArray() {
		return "", false
	}
	s := strings.TrimSpace(result.String())
	return s, s != ""
}

func (r Record) FloatForPath(path string) (float64, bool) {
	s, ok := r.StringForPath(path)
	if !ok {
		return 0, false
	}
	return parseFlexibleFloat(s)
}

func (r Record) IntForPath(path string) (int64, bool) {
	f, ok := r.FloatForPath(path)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// BoolForPath treats any non-empty value other than 0/false/no/n/off as set.
func (r Record) BoolForPath(path string) (bool, bool) {
	s, ok := r.StringForPath(path)
	if !ok {
		return false, false
	}
	switch strings.ToLower(s) {
	case "0", "false", "no", "n", "off", "none":
		return false, true
	}
	return true, true
}

var thousandsGrouped = regexp.MustCompile(`^-?\d{1,3}(,\d{3})+$`)

// parseFlexibleFloat accepts "1,250.00", "1,250", "$99", "8,5". A comma
// followed by exact groups of three digits separates thousands.
func parseFlexibleFloat(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimLeft(s, "$€£ "))
	if strings.Contains(s, ".") || thousandsGrouped.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.ReplaceAll(s, ",", ".")
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}
