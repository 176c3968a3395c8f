package middleware

import "regexp"

// rulePlaceholder matches one host-framework placeholder segment:
// /<name> or /<name:modifier>. Literal segments never contain the
// bounding /<...> pair, so they pass through untouched.
var rulePlaceholder = regexp.MustCompile(`/<([^/:>]+)(:[^/>]*)?>`)

// TranslateRule rewrites a router rule into swagger placeholder syntax:
// /pets/<id:int> becomes /pets/{id}. Rules already in swagger syntax
// come back unchanged.
func TranslateRule(rule string) string {
	return rulePlaceholder.ReplaceAllString(rule, "/{$1}")
}
