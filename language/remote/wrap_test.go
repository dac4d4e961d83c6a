package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapGoBareStatements(t *testing.T) {
	got := WrapGo(`fmt.Println(42)`)
	assert.Equal(t, "package main\n\nfunc main() {\n\tfmt.Println(42)\n}\n", got)
}

func TestWrapGoHoistsImports(t *testing.T) {
	got := WrapGo("import \"fmt\"\nfmt.Println(42)")
	assert.Equal(t, "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(42)\n}\n", got)
}

func TestWrapGoSkipsWhenMainPresent(t *testing.T) {
	src := "package main\n\nfunc main() {\n\tfmt.Println(42)\n}\n"
	assert.Equal(t, src, WrapGo(src))
}

func TestWrapGoSkipsWhenMainInComment(t *testing.T) {
	// Conservative by design: a comment mentioning func main( suppresses the
	// rewrite rather than risking a double definition.
	src := "// func main( is added automatically\nfmt.Println(42)"
	assert.Equal(t, src, WrapGo(src))
}

func TestWrapGoKeepsExistingPackageClause(t *testing.T) {
	src := "package main\n\nvar x = 1"
	got := WrapGo(src)
	assert.Contains(t, got, "func main()")
	assert.Equal(t, 1, countOccurrences(got, "package main"))
}

func TestWrapCBareStatements(t *testing.T) {
	got := WrapC(`printf("hi\n");`)
	assert.Equal(t, "int main(void) {\n\tprintf(\"hi\\n\");\n\treturn 0;\n}\n", got)
}

func TestWrapCHoistsIncludes(t *testing.T) {
	got := WrapC("#include <stdio.h>\nprintf(\"hi\\n\");")
	assert.Equal(t, "#include <stdio.h>\n\nint main(void) {\n\tprintf(\"hi\\n\");\n\treturn 0;\n}\n", got)
}

func TestWrapCSkipsWhenMainPresent(t *testing.T) {
	src := "#include <stdio.h>\nint main(void) { return 0; }\n"
	assert.Equal(t, src, WrapC(src))
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
		}
	}
	return count
}
