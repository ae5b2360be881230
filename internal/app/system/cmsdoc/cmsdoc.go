// Package cmsdoc works on the free-form content documents behind the
// homepage editor: dotted-path access, URL collection and orphan diffing.
//
// Documents are map[string]any trees. Values read back from MongoDB may
// hold primitive.D/M/A; call Normalize before using the other helpers.
package cmsdoc

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxIndex bounds numeric path segments so a path cannot allocate a huge array.
const MaxIndex = 999

var (
	ErrBadPath     = errors.New("invalid content path")
	ErrPathBlocked = errors.New("content path crosses a non-container value")
)

// Normalize converts BSON container types into map[string]any and []any,
// recursively. Other values are returned unchanged.
func Normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Normalize(e)
		}
		return out
	case primitive.M:
		return Normalize(map[string]any(t))
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = Normalize(e.Value)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	case primitive.A:
		return Normalize([]any(t))
	default:
		return v
	}
}

// NormalizeDoc is Normalize for a top-level document; nil becomes an empty map.
func NormalizeDoc(doc map[string]any) map[string]any {
	if doc == nil {
		return map[string]any{}
	}
	return Normalize(doc).(map[string]any)
}

// ParsePath splits "hero.slides.2.image" into its segments. Segments are
// non-empty and limited to letters, digits, '_' and '-'.
func ParsePath(path string) ([]string, error) {
	if path == "" {
		return nil, ErrBadPath
	}
	segs := strings.Split(path, ".")
	for _, s := range segs {
		if s == "" {
			return nil, ErrBadPath
		}
		for _, r := range s {
			ok := r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			if !ok {
				return nil, fmt.Errorf("%w: segment %q", ErrBadPath, s)
			}
		}
		if idx, isIdx := index(s); isIdx && idx > MaxIndex {
			return nil, fmt.Errorf("%w: index %d out of range", ErrBadPath, idx)
		}
	}
	return segs, nil
}

func index(seg string) (int, bool) {
	n, err := strconv.Atoi(seg)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Get returns the value at path, or false when any step is missing.
func Get(doc map[string]any, path string) (any, bool) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, false
	}
	var cur any = doc
	for _, s := range segs {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[s]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, ok := index(s)
			if !ok || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Set writes value at path, creating maps for name segments and arrays
// for numeric segments as needed. Arrays grow with nil padding.
func Set(doc map[string]any, path string, value any) error {
	segs, err := ParsePath(path)
	if err != nil {
		return err
	}
	_, err = set(doc, segs, value)
	return err
}

// set returns the (possibly replaced) container so grown arrays propagate
// back to their parent.
func set(node any, segs []string, value any) (any, error) {
	seg := segs[0]
	last := len(segs) == 1

	switch n := node.(type) {
	case map[string]any:
		if last {
			n[seg] = value
			return n, nil
		}
		child, err := set(ensureChild(n[seg], segs[1]), segs[1:], value)
		if err != nil {
			return nil, err
		}
		n[seg] = child
		return n, nil
	case []any:
		i, ok := index(seg)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not an array index", ErrPathBlocked, seg)
		}
		for len(n) <= i {
			n = append(n, nil)
		}
		if last {
			n[i] = value
			return n, nil
		}
		child, err := set(ensureChild(n[i], segs[1]), segs[1:], value)
		if err != nil {
			return nil, err
		}
		n[i] = child
		return n, nil
	default:
		return nil, ErrPathBlocked
	}
}

// ensureChild returns existing when it is a container, otherwise a new
// container shaped for the next segment. A scalar in the way is an error
// surfaced by the following set call.
func ensureChild(existing any, next string) any {
	switch existing.(type) {
	case map[string]any, []any:
		return existing
	case nil:
		if _, ok := index(next); ok {
			return []any{}
		}
		return map[string]any{}
	default:
		return existing
	}
}

// CollectURLs returns every string leaf for which managed returns true.
func CollectURLs(doc any, managed func(string) bool) map[string]struct{} {
	out := make(map[string]struct{})
	walk(doc, "", func(_ string, s string) string {
		if managed(s) {
			out[s] = struct{}{}
		}
		return s
	})
	return out
}

// Orphans lists managed URLs present in oldDoc and absent from newDoc, sorted.
func Orphans(oldDoc, newDoc any, managed func(string) bool) []string {
	before := CollectURLs(oldDoc, managed)
	after := CollectURLs(newDoc, managed)
	var out []string
	for u := range before {
		if _, kept := after[u]; !kept {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out
}

// Contains reports whether url appears anywhere in doc as a string leaf.
func Contains(doc any, url string) bool {
	found := false
	walk(doc, "", func(_ string, s string) string {
		if s == url {
			found = true
		}
		return s
	})
	return found
}

// SanitizeHTML rewrites string leaves whose key ends in "html"
// (case-insensitive) through clean. Array elements inherit their
// parent's key.
func SanitizeHTML(doc any, clean func(string) string) {
	walk(doc, "", func(key, s string) string {
		if strings.HasSuffix(strings.ToLower(key), "html") {
			return clean(s)
		}
		return s
	})
}

// walk visits string leaves depth-first; fn's result replaces the leaf.
func walk(node any, key string, fn func(key, s string) string) {
	switch n := node.(type) {
	case map[string]any:
		for k, v := range n {
			if s, ok := v.(string); ok {
				n[k] = fn(k, s)
				continue
			}
			walk(v, k, fn)
		}
	case []any:
		for i, v := range n {
			if s, ok := v.(string); ok {
				n[i] = fn(key, s)
				continue
			}
			walk(v, key, fn)
		}
	}
}
