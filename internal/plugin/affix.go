package plugin

import (
	"regexp"
	"strings"
)

// Affix is the tagged variant behind a plugin's prefix or command spec:
// a literal string, a compiled pattern, or an ordered list of either.
// Literals are compiled with their metacharacters escaped, so "." matches
// a dot and nothing else.
type Affix struct {
	literal  string
	pattern  *regexp.Regexp
	children []*Affix
}

// Literal builds an Affix that matches the exact string.
func Literal(s string) *Affix {
	return &Affix{literal: s, pattern: regexp.MustCompile(regexp.QuoteMeta(s))}
}

// Pattern builds an Affix from a compiled regular expression.
func Pattern(re *regexp.Regexp) *Affix {
	return &Affix{pattern: re}
}

// OneOf builds an Affix whose candidates are tried in declaration order.
func OneOf(children ...*Affix) *Affix {
	return &Affix{children: children}
}

// Literals is shorthand for OneOf over literal strings.
func Literals(ss ...string) *Affix {
	children := make([]*Affix, len(ss))
	for i, s := range ss {
		children[i] = Literal(s)
	}
	return OneOf(children...)
}

// MatchPrefix tries each candidate against text in declaration order and
// returns the first match that is a non-empty leading substring of text.
// ok=false means this plugin has no usable prefix for the message.
func (a *Affix) MatchPrefix(text string) (matched string, ok bool) {
	if a == nil {
		return "", false
	}
	if len(a.children) > 0 {
		for _, c := range a.children {
			if m, ok := c.MatchPrefix(text); ok {
				return m, true
			}
		}
		return "", false
	}
	if a.pattern == nil {
		return "", false
	}
	loc := a.pattern.FindStringIndex(text)
	if loc == nil || loc[0] != 0 || loc[1] == 0 {
		return "", false
	}
	return text[:loc[1]], true
}

// MatchCommand reports whether the command word satisfies the spec:
// patterns are tested against the word, lists accept if any element does,
// literals require exact equality. A nil spec never matches.
func (a *Affix) MatchCommand(command string) bool {
	if a == nil {
		return false
	}
	if len(a.children) > 0 {
		for _, c := range a.children {
			if c.MatchCommand(command) {
				return true
			}
		}
		return false
	}
	if a.literal != "" || a.pattern == nil {
		return a.literal == command
	}
	return a.pattern.MatchString(command)
}

// SplitCommand tokenizes the remainder after the matched prefix into the
// case-folded command word and its argument list.
func SplitCommand(text, usedPrefix string) (command string, args []string, noPrefix string) {
	noPrefix = strings.TrimPrefix(text, usedPrefix)
	fields := strings.Fields(noPrefix)
	if len(fields) == 0 {
		return "", nil, noPrefix
	}
	return strings.ToLower(fields[0]), fields[1:], noPrefix
}
