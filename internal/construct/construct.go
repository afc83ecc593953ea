// Package construct isolates the indentation-delimited block that defines a
// named class inside source text.
//
// The block ends at the first non-blank line indented no deeper than the
// class line. Only indentation is considered, so in brace-delimited sources
// the closing brace is left out and unindented bodies are lost; callers
// restrict extraction to Python units.
package construct

import "strings"

// ExtractBlock returns the class line for name plus its indented body.
// When no line contains "class <name>", the source is returned unchanged
// and found is false.
func ExtractBlock(source, name string) (block string, found bool) {
	if name == "" {
		return source, false
	}
	lines := strings.Split(source, "\n")
	needle := "class " + name
	start := -1
	for i, line := range lines {
		if strings.Contains(line, needle) {
			start = i
			break
		}
	}
	if start < 0 {
		return source, false
	}

	level := indentWidth(lines[start])
	out := []string{lines[start]}
	for _, line := range lines[start+1:] {
		if isBlank(line) {
			out = append(out, line)
			continue
		}
		if indentWidth(line) <= level {
			break
		}
		out = append(out, line)
	}
	for len(out) > 1 && isBlank(out[len(out)-1]) {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n"), true
}

func indentWidth(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
