package remote

import (
	"regexp"
	"strings"
)

// Entry-point detection is a conservative text match, not a parser. A comment
// or string literal shaped like a definition suppresses wrapping; that is the
// accepted failure mode. Whenever a definition is found, the source passes
// through untouched.
var (
	goMainPattern    = regexp.MustCompile(`(?m)^\s*func\s+main\s*\(`)
	goPackagePattern = regexp.MustCompile(`(?m)^\s*package\s+\w+`)
	goImportPattern  = regexp.MustCompile(`(?m)^import\s+(?:\([^)]*\)|"[^"]+")\s*$`)
	cMainPattern     = regexp.MustCompile(`(?m)\bmain\s*\(`)
	cIncludePattern  = regexp.MustCompile(`(?m)^\s*#\s*include\b.*$`)
)

// WrapGo wraps a bare statement list in a main package and function. Sources
// that already declare func main pass through unchanged; top-level import
// blocks are hoisted above the generated function.
func WrapGo(source string) string {
	if goMainPattern.MatchString(source) {
		return source
	}

	var parts []string
	body := source
	if clause := goPackagePattern.FindString(source); clause != "" {
		parts = append(parts, strings.TrimSpace(clause))
		body = strings.Replace(body, clause, "", 1)
	} else {
		parts = append(parts, "package main")
	}

	for _, imp := range goImportPattern.FindAllString(source, -1) {
		parts = append(parts, imp)
		body = strings.Replace(body, imp, "", 1)
	}

	parts = append(parts, "func main() {\n"+indent(strings.TrimSpace(body))+"\n}")
	return strings.Join(parts, "\n\n") + "\n"
}

// WrapC wraps a bare statement list in int main(). Preprocessor includes are
// hoisted above the generated function; a source already mentioning main(
// passes through unchanged.
func WrapC(source string) string {
	if cMainPattern.MatchString(source) {
		return source
	}

	var parts []string
	body := source
	for _, inc := range cIncludePattern.FindAllString(source, -1) {
		parts = append(parts, inc)
		body = strings.Replace(body, inc, "", 1)
	}

	parts = append(parts, "int main(void) {\n"+indent(strings.TrimSpace(body))+"\n\treturn 0;\n}")
	return strings.Join(parts, "\n\n") + "\n"
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = "\t" + line
		}
	}
	return strings.Join(lines, "\n")
}
