// Package prompt assembles mentor instructions from stored templates,
// program context, session focus and the student summary.
package prompt

import (
	"regexp"
)

var placeholderRe = regexp.MustCompile(`{{\s*(\w+)\s*}}`)

// Vars are the values substituted into a template.
type Vars map[string]string

// Render replaces every {{ key }} in tmpl with vars[key]. Keys missing from
// vars render as the empty string.
func Render(tmpl string, vars Vars) string {
	out, _ := RenderReport(tmpl, vars)
	return out
}

// RenderReport is Render that also returns the placeholder keys that had no
// value, in order of first appearance.
func RenderReport(tmpl string, vars Vars) (string, []string) {
	var missing []string
	seen := map[string]bool{}

	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		if !seen[key] {
			seen[key] = true
			missing = append(missing, key)
		}
		return ""
	})
	return out, missing
}

// Placeholders lists the distinct keys referenced by tmpl.
func Placeholders(tmpl string) []string {
	var keys []string
	seen := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys
}
