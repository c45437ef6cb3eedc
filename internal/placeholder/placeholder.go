// Package placeholder implements the textual substitution used to turn an
// operation template into a statement.
//
// Templates use two kinds of tokens:
//   - $v: the generated name of the operation's own value
//   - $0..$3: the generated names of its dependencies, by position
//
// Substitution is purely textual. A replacement must never contain a token
// itself; generated names of the form v<id> and dv<id> never do.
package placeholder

import (
	"strconv"
	"strings"
)

// Self is the token for the operation's own value.
const Self = "$v"

// Dep returns the token for dependency i.
func Dep(i int) string {
	return "$" + strconv.Itoa(i)
}

// Replace replaces every occurrence of token in text, repeating until the
// token no longer occurs. An empty token leaves text untouched. When the
// replacement contains the token only a single pass is made.
func Replace(text, token, replacement string) string {
	if token == "" {
		return text
	}
	if strings.Contains(replacement, token) {
		return strings.ReplaceAll(text, token, replacement)
	}
	for strings.Contains(text, token) {
		text = strings.Replace(text, token, replacement, 1)
	}
	return text
}

// Expand substitutes $v with self and $i with deps[i], in that order.
func Expand(template, self string, deps ...string) string {
	if template == "" {
		return ""
	}
	out := Replace(template, Self, self)
	for i, name := range deps {
		out = Replace(out, Dep(i), name)
	}
	return out
}
