package rag

import (
	"regexp"
	"strings"
)

// Language is the response language the answer generator is steered to.
// It never alters pipeline control flow.
type Language string

// Supported response languages. The HyDE prompt instructs the model to
// declare the input language as a bracketed tag from this set.
const (
	English    Language = "English"
	Japanese   Language = "Japanese"
	Spanish    Language = "Spanish"
	Indonesian Language = "Indonesian"
	Korean     Language = "Korean"
	Vietnamese Language = "Vietnamese"
	Thai       Language = "Thai"
)

// languagePriority is the fixed detection order. First match wins; the
// ordering is a compatibility-sensitive tie-break and must not change.
var languagePriority = []struct {
	needle string
	lang   Language
}{
	{"japanese", Japanese},
	{"spanish", Spanish},
	{"indonesian", Indonesian},
	{"korean", Korean},
	{"vietnamese", Vietnamese},
	{"thai", Thai},
}

// lastBracketsRe matches a final bracketed tag, greedily across newlines.
var lastBracketsRe = regexp.MustCompile(`(?s)^(.*)(\[.*?\])$`)

// SplitLastBrackets splits off a trailing bracketed part from text.
// Only the last bracketed substring anchored at the end is extracted;
// earlier bracket-like text stays in the body. Trailing whitespace after
// the tag is ignored, since generative models usually end their output
// with a newline. If no tag is present the body is returned unchanged
// with an empty tag.
func SplitLastBrackets(text string) (body, tag string) {
	m := lastBracketsRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return text, ""
	}
	return strings.TrimSpace(m[1]), m[2]
}

// DetectLanguage maps a bracketed tag to a Language by case-insensitive
// substring matching in fixed priority order. No match defaults to
// English; detection failure is indistinguishable from English.
func DetectLanguage(tag string) Language {
	lower := strings.ToLower(tag)
	for _, cand := range languagePriority {
		if strings.Contains(lower, cand.needle) {
			return cand.lang
		}
	}
	return English
}
