package python

import "regexp"

// importPattern matches top-of-line import statements and captures the root
// module name. This is deliberately a text heuristic, not a parser: a string
// literal or comment shaped like an import can produce a false positive,
// which at worst triggers a harmless failed install.
var importPattern = regexp.MustCompile(`(?m)^[ \t]*(?:import|from)[ \t]+([A-Za-z_][A-Za-z0-9_]*)`)

// moduleToPackage maps import names to the package index names they ship
// under when the two differ.
var moduleToPackage = map[string]string{
	"attr":     "attrs",
	"bs4":      "beautifulsoup4",
	"dateutil": "python-dateutil",
	"dotenv":   "python-dotenv",
	"jwt":      "pyjwt",
	"yaml":     "pyyaml",
}

// preloadedModules is the fixed set of low-cost standard modules the engine
// warms up at construction. The installer never fetches these.
func preloadedModules() []string {
	return []string{
		"abc", "bisect", "collections", "datetime", "functools", "heapq",
		"io", "itertools", "json", "math", "random", "re", "statistics",
		"string", "sys", "textwrap", "time", "typing",
	}
}

// scanImports returns the distinct root modules imported by source, in
// first-appearance order.
func scanImports(source string) []string {
	seen := make(map[string]struct{})
	var modules []string
	for _, m := range importPattern.FindAllStringSubmatch(source, -1) {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		modules = append(modules, name)
	}
	return modules
}
