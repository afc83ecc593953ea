// Package intent guesses which named code construct a free-text question
// is about. It is a heuristic, not a parser: proper nouns in a question can
// be picked up as construct names.
package intent

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

type cue struct {
	re *regexp.Regexp
	// explicit cues name the construct as a class, so a lowercase capture is
	// still taken as the intended name.
	explicit bool
}

// Ordered by priority; the first accepted capture wins.
var cues = []cue{
	{re: regexp.MustCompile(`(?i)\bclass\s+(\w+)`), explicit: true},
	{re: regexp.MustCompile(`(?i)\bthe\s+(\w+)\s+class\b`), explicit: true},
	{re: regexp.MustCompile(`(?i)\bwhat\s+does\s+(\w+)\s+do\b`)},
	{re: regexp.MustCompile(`(?i)\bhow\s+does\s+(\w+)\s+work\b`)},
	{re: regexp.MustCompile(`(?i)\bshow\s+me\s+(?:the\s+)?(\w+)`)},
	{re: regexp.MustCompile(`(?i)\bexplain\s+(?:the\s+)?(\w+)`)},
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"what": {}, "how": {}, "why": {}, "where": {}, "when": {}, "which": {}, "who": {},
	"does": {}, "do": {}, "is": {}, "are": {}, "can": {}, "could": {}, "should": {}, "would": {},
	"show": {}, "me": {}, "explain": {}, "describe": {}, "tell": {}, "find": {}, "list": {},
	"in": {}, "of": {}, "for": {}, "to": {}, "from": {}, "with": {}, "about": {}, "on": {}, "by": {},
	"i": {}, "it": {}, "my": {}, "we": {}, "you": {}, "please": {},
	"class": {}, "function": {}, "method": {}, "implementation": {}, "code": {}, "file": {},
}

// ExtractClassName returns the construct name a query most likely refers
// to, with its first letter upper-cased. ok is false when nothing was
// identified; callers then use the best-ranked unit verbatim.
func ExtractClassName(query string) (name string, ok bool) {
	for _, c := range cues {
		for _, m := range c.re.FindAllStringSubmatch(query, -1) {
			word := m[1]
			if isStopWord(word) {
				continue
			}
			if !c.explicit && !startsUpper(word) {
				continue
			}
			return capitalize(word), true
		}
	}
	for _, tok := range strings.Fields(query) {
		tok = strings.TrimFunc(tok, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
		})
		if tok == "" || !startsUpper(tok) || isStopWord(tok) {
			continue
		}
		return tok, true
	}
	return "", false
}

func isStopWord(w string) bool {
	_, ok := stopWords[strings.ToLower(w)]
	return ok
}

func startsUpper(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	return unicode.IsUpper(r)
}

func capitalize(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if r == utf8.RuneError {
		return w
	}
	return string(unicode.ToUpper(r)) + w[size:]
}
