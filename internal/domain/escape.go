package domain

import (
	"sort"
	"strconv"
	"strings"
)

const (
	keySeparator = "."
	keyEscape    = "~"
)

var (
	keyEscaper   = strings.NewReplacer(keyEscape, "~0", keySeparator, "~1")
	keyUnescaper = strings.NewReplacer("~1", keySeparator, "~0", keyEscape)
)

// EscapeKey replaces "." in a key with "~1", after escaping "~" itself as "~0".
func EscapeKey(key string) string {
	return keyEscaper.Replace(key)
}

func UnescapeKey(key string) string {
	return keyUnescaper.Replace(key)
}

// EscapeKeys walks maps and slices and escapes every map key. Values are left as is.
func EscapeKeys(value any) any {
	return walkKeys(value, EscapeKey)
}

func UnescapeKeys(value any) any {
	return walkKeys(value, UnescapeKey)
}

func walkKeys(value any, rename func(string) string) any {
	switch typed := value.(type) {
	case map[string]any:
		if typed == nil {
			return typed
		}
		out := make(map[string]any, len(typed))
		for key, nested := range typed {
			out[rename(key)] = walkKeys(nested, rename)
		}
		return out
	case map[string]string:
		if typed == nil {
			return typed
		}
		out := make(map[string]string, len(typed))
		for key, nested := range typed {
			out[rename(key)] = nested
		}
		return out
	case []map[string]any:
		if typed == nil {
			return typed
		}
		out := make([]map[string]any, len(typed))
		for i, nested := range typed {
			out[i] = walkKeys(nested, rename).(map[string]any)
		}
		return out
	case []any:
		if typed == nil {
			return typed
		}
		out := make([]any, len(typed))
		for i, nested := range typed {
			out[i] = walkKeys(nested, rename)
		}
		return out
	default:
		return value
	}
}

// FlattenKeys lists the sorted "a.b.c" key paths of an escaped body. Values are left out
// so bodies can be traced without leaking field contents.
func FlattenKeys(body map[string]any) []string {
	var paths []string
	flatten("", body, &paths)
	sort.Strings(paths)
	return paths
}

func flatten(prefix string, value any, paths *[]string) {
	switch typed := value.(type) {
	case map[string]any:
		if len(typed) == 0 && prefix != "" {
			*paths = append(*paths, prefix)
			return
		}
		for key, nested := range typed {
			flatten(joinPath(prefix, key), nested, paths)
		}
	case []map[string]any:
		for i, nested := range typed {
			flatten(joinPath(prefix, strconv.Itoa(i)), nested, paths)
		}
	case []any:
		for i, nested := range typed {
			flatten(joinPath(prefix, strconv.Itoa(i)), nested, paths)
		}
	default:
		*paths = append(*paths, prefix)
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + keySeparator + key
}
