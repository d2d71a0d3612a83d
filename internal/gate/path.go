package gate

import (
	"strings"

	"github.com/tidwall/gjson"
)

// disallowedSegments never resolve, whatever the document contains.
var disallowedSegments = map[string]bool{
	"__proto__":   true,
	"prototype":   true,
	"constructor": true,
}

// lookup resolves a dotted path against a parsed document. Each segment is
// an own key, or a decimal index into an array. gjson query syntax inside a
// segment is escaped, so "a.#" looks up a key named "#".
func lookup(doc gjson.Result, path string) gjson.Result {
	if path == "" {
		return gjson.Result{}
	}
	current := doc
	for _, seg := range strings.Split(path, ".") {
		if seg == "" || disallowedSegments[seg] {
			return gjson.Result{}
		}
		switch {
		case current.IsArray():
			if !isIndex(seg) {
				return gjson.Result{}
			}
			current = current.Get(seg)
		case current.IsObject():
			current = current.Get(gjson.Escape(seg))
		default:
			return gjson.Result{}
		}
		if !current.Exists() {
			return gjson.Result{}
		}
	}
	return current
}

func isIndex(seg string) bool {
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// typeOf names a JSON value's type the way the evidence strings report it.
func typeOf(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return "string"
	case gjson.Number:
		return "number"
	case gjson.True, gjson.False:
		return "boolean"
	case gjson.JSON:
		return "object"
	}
	return "undefined"
}

// collectStrings gathers every string reachable under r, descending
// through arrays and objects.
func collectStrings(r gjson.Result, into map[string]bool) {
	switch {
	case r.Type == gjson.String:
		into[r.Str] = true
	case r.IsArray(), r.IsObject():
		r.ForEach(func(_, value gjson.Result) bool {
			collectStrings(value, into)
			return true
		})
	}
}
