package data

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// Punctuation kept in the modeled alphabet; everything else is noise
	// the tokenizer should never see.
	AllowedSpecialChars = []string{".", "!", "?", ",", "'", "-"}

	reClean *regexp.Regexp
)

func init() {
	escapedChars := make([]string, len(AllowedSpecialChars))
	for i, c := range AllowedSpecialChars {
		escapedChars[i] = regexp.QuoteMeta(c)
	}
	allAllowedGroup := strings.Join(escapedChars, "")

	// Match anything that is NOT a-z, 0-9, whitespace or an allowed symbol
	reClean = regexp.MustCompile(fmt.Sprintf(`[^a-z0-9\s%s]+`, allAllowedGroup))
}

// CleanLine lowercases one raw corpus line, strips characters outside the
// modeled alphabet and collapses whitespace runs.
func CleanLine(s string) string {
	s = strings.ToLower(s)
	s = reClean.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}
