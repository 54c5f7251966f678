// Package cleanmeta strips marketing suffixes from track titles before
// they reach notifications and daily reports: featured-artist tails and
// junk parentheticals like "(Remastered 2011)" or "[Radio Edit]".
package cleanmeta

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

var symbols = "1234567890!@#$%^&*()-=_+[]{};\"|;'\\<>?/.,~`"

// Words whose presence in a parenthetical marks it as version guff
// rather than part of the title.
var guffParenWords = []string{
	"acoustic", "bonus", "clean", "club", "demo", "dirty", "edit", "explicit",
	"extended", "instrumental", "karaoke", "live", "main", "mix", "mono",
	"official", "original", "radio", "re-edit", "remastered", "remaster",
	"remix", "remixed", "reprise", "rework", "rmx", "session", "single",
	"stereo", "studio", "unplugged", "version", "ver", "video", "vocal",
}

type Cleaner struct {
	titleExpressions []*regexp2.Regexp
	yearExpr         *regexp2.Regexp
}

func NewCleaner() *Cleaner {
	titlePatterns := []string{
		`(?<title>.+?)\s+(?<enclosed>\(.+\)|\[.+\]|\{.+\})$`,
		`(?<title>.+?)\s+?(?<feat>[\[\(]?(?:feat(?:uring)?|ft)\b\.?)\s*?(?<artists>.+)\s*`,
		`(?<title>.+?)(?:\s+?[\u2010\u2012\u2013\u2014~/-])(?![^(]*\))(?<dash>.*)`,
	}

	compiled := make([]*regexp2.Regexp, 0, len(titlePatterns))
	for _, pattern := range titlePatterns {
		compiled = append(compiled, regexp2.MustCompile(`(?i)`+pattern, 0))
	}

	return &Cleaner{
		titleExpressions: compiled,
		yearExpr:         regexp2.MustCompile(`(20[0-9]{2}|19[0-9]{2})`, 0),
	}
}

// CleanTitle returns the title with any guff suffix removed and whether
// anything changed. Unbalanced brackets leave the title untouched.
func (c *Cleaner) CleanTitle(text string) (string, bool) {
	text = strings.TrimSpace(text)

	if !balancedBrackets(text) {
		return text, false
	}

	for _, expr := range c.titleExpressions {
		match, _ := expr.FindStringMatch(text)
		if match == nil {
			continue
		}

		groups := make(map[string]string)
		for _, name := range expr.GetGroupNames() {
			groups[name] = strings.TrimSpace(match.GroupByName(name).String())
		}

		if enclosed := groups["enclosed"]; enclosed != "" && c.isLikelyGuff(enclosed) {
			return groups["title"], true
		}

		if feat := groups["feat"]; feat != "" {
			return groups["title"], true
		}

		if dash := groups["dash"]; dash != "" && c.isLikelyGuff(dash) {
			return groups["title"], true
		}
	}

	return text, false
}

// isLikelyGuff decides whether a suffix is version noise: after removing
// the known guff words and year numbers, guff characters must outnumber
// the letters that remain.
func (c *Cleaner) isLikelyGuff(suffix string) bool {
	s := strings.ToLower(suffix)
	beforeLen := utf8.RuneCountInString(s)

	for _, guff := range guffParenWords {
		s = strings.ReplaceAll(s, guff, "")
	}

	s, _ = c.yearExpr.Replace(s, "", -1, -1)
	replaced := beforeLen - utf8.RuneCountInString(s)

	letters := 0
	guffChars := replaced
	for _, ch := range s {
		if strings.ContainsRune(symbols, ch) {
			guffChars++
		}
		if unicode.IsLetter(ch) {
			letters++
		}
	}

	return guffChars > letters
}

func balancedBrackets(text string) bool {
	brackets := []struct {
		open, close rune
	}{
		{'(', ')'}, {'[', ']'}, {'{', '}'},
	}
	for _, pair := range brackets {
		if strings.Count(text, string(pair.open)) != strings.Count(text, string(pair.close)) {
			return false
		}
	}
	return true
}
