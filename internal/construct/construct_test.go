package construct

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const retrySource = `import time

class RetryPolicy:
    def __init__(self, attempts):
        self.attempts = attempts
    def delay(self, n):
        return 2 ** n

def unrelated():
    return RetryPolicy(3)
`

func TestExtractBlock_TopLevelClass(t *testing.T) {
	got, found := ExtractBlock(retrySource, "RetryPolicy")
	require.True(t, found)
	want := "class RetryPolicy:\n" +
		"    def __init__(self, attempts):\n" +
		"        self.attempts = attempts\n" +
		"    def delay(self, n):\n" +
		"        return 2 ** n"
	assert.Equal(t, want, got)
	assert.NotContains(t, got, "unrelated")
}

func TestExtractBlock_BlankLinesInsideBody(t *testing.T) {
	src := "class Store:\n    a = 1\n\n    def get(self):\n        return self.a\n\nclass Other:\n    pass\n"
	got, found := ExtractBlock(src, "Store")
	require.True(t, found)
	assert.Equal(t, "class Store:\n    a = 1\n\n    def get(self):\n        return self.a", got)
}

func TestExtractBlock_NestedClass(t *testing.T) {
	src := "class Outer:\n    class Inner:\n        x = 1\n    y = 2\nz = 3\n"
	got, found := ExtractBlock(src, "Inner")
	require.True(t, found)
	assert.Equal(t, "    class Inner:\n        x = 1", got)
}

func TestExtractBlock_TabIndentation(t *testing.T) {
	src := "class Tabbed:\n\tdef run(self):\n\t\tpass\nprint('done')\n"
	got, found := ExtractBlock(src, "Tabbed")
	require.True(t, found)
	assert.Equal(t, "class Tabbed:\n\tdef run(self):\n\t\tpass", got)
}

func TestExtractBlock_NotFoundReturnsInput(t *testing.T) {
	for _, name := range []string{"Missing", "retrypolicy", ""} {
		got, found := ExtractBlock(retrySource, name)
		assert.False(t, found, name)
		assert.Equal(t, retrySource, got, name)
	}
}

func TestExtractBlock_BraceDelimitedStopsAtClosingBrace(t *testing.T) {
	src := "public class Server {\n    int port;\n}\n"
	got, found := ExtractBlock(src, "Server")
	require.True(t, found)
	assert.Equal(t, "public class Server {\n    int port;", got)
}

func TestExtractBlock_Idempotent(t *testing.T) {
	sources := []struct{ src, name string }{
		{retrySource, "RetryPolicy"},
		{"class Store:\n    a = 1\n\n    b = 2\n\n\nx = 1\n", "Store"},
		{"class Outer:\n    class Inner:\n        x = 1\n    y = 2\n", "Inner"},
		{retrySource, "Absent"},
	}
	for _, s := range sources {
		once, _ := ExtractBlock(s.src, s.name)
		twice, _ := ExtractBlock(once, s.name)
		assert.Equal(t, once, twice, s.name)
	}
}
