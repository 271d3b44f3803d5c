package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oliveagle/jsonpath"
)

var tokenRe = regexp.MustCompile(`{(.*?)}`)

// ResolveString interpolates {$.path} tokens in a template against the
// context map. A whole-string "$..." reference keeps strings as strings, the
// result is always textual.
func ResolveString(value string, ctx map[string]any) string {
	if strings.HasPrefix(value, "$") && !strings.Contains(value, "{") {
		resolved, err := jsonpath.JsonPathLookup(ctx, value)
		if err != nil {
			return value
		}
		return fmt.Sprintf("%v", resolved)
	}
	tokens := tokenRe.FindAllString(value, -1)
	out := value
	for _, token := range tokens {
		path := strings.TrimSuffix(strings.TrimPrefix(token, "{"), "}")
		if !strings.HasPrefix(path, "$") {
			continue
		}
		resolved, err := jsonpath.JsonPathLookup(ctx, path)
		if err != nil {
			continue
		}
		out = strings.ReplaceAll(out, token, fmt.Sprintf("%v", resolved))
	}
	return out
}

// ResolveParams deep-copies params resolving every string value. A string
// that is exactly a "$..." reference keeps the looked-up value's type, a
// string with embedded {$...} tokens is interpolated.
func ResolveParams(params map[string]any, ctx map[string]any) map[string]any {
	output := make(map[string]any, len(params))
	for k, v := range params {
		output[k] = resolveValue(v, ctx)
	}
	return output
}

func resolveValue(v any, ctx map[string]any) any {
	switch t := v.(type) {
	case map[string]any:
		return ResolveParams(t, ctx)
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			out = append(out, resolveValue(item, ctx))
		}
		return out
	case string:
		if strings.HasPrefix(t, "$") && !strings.Contains(t, "{") {
			resolved, err := jsonpath.JsonPathLookup(ctx, t)
			if err != nil {
				return t
			}
			return resolved
		}
		return ResolveString(t, ctx)
	default:
		return v
	}
}
