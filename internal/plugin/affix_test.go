package plugin

import (
	"regexp"
	"testing"
)

func TestMatchPrefixLiteral(t *testing.T) {
	a := Literal(".")
	got, ok := a.MatchPrefix(".ping")
	if !ok || got != "." {
		t.Fatalf("MatchPrefix(.ping) = %q, %v", got, ok)
	}
	if _, ok := a.MatchPrefix("ping"); ok {
		t.Error("prefix must anchor at the start of the text")
	}
	// Literal metacharacters must not act as regex: "." matches only a dot.
	if _, ok := a.MatchPrefix("xping"); ok {
		t.Error("literal dot matched a non-dot character")
	}
}

func TestMatchPrefixFirstCandidateWins(t *testing.T) {
	a := Literals("#", ".", ".#")
	got, ok := a.MatchPrefix(".#cmd")
	if !ok || got != "." {
		t.Fatalf("got %q, want first matching candidate %q", got, ".")
	}
}

func TestMatchPrefixPattern(t *testing.T) {
	a := Pattern(regexp.MustCompile(`^[.#/!]`))
	got, ok := a.MatchPrefix("#menu")
	if !ok || got != "#" {
		t.Fatalf("got %q, %v", got, ok)
	}
	// A match not anchored at position 0 is not a prefix.
	if _, ok := a.MatchPrefix("oh #menu"); ok {
		t.Error("mid-text match must not count as a prefix")
	}
}

func TestMatchCommand(t *testing.T) {
	cases := []struct {
		name string
		a    *Affix
		cmd  string
		want bool
	}{
		{"nil never matches", nil, "ping", false},
		{"literal exact", Literal("ping"), "ping", true},
		{"literal no substring", Literal("ping"), "pingx", false},
		{"list any", Literals("p", "ping"), "ping", true},
		{"list miss", Literals("p", "q"), "ping", false},
		{"pattern", Pattern(regexp.MustCompile(`^ping\d*$`)), "ping2", true},
	}
	for _, tc := range cases {
		if got := tc.a.MatchCommand(tc.cmd); got != tc.want {
			t.Errorf("%s: MatchCommand(%q) = %v, want %v", tc.name, tc.cmd, got, tc.want)
		}
	}
}

func TestSplitCommand(t *testing.T) {
	cmd, args, noPrefix := SplitCommand(".Ping  a   b", ".")
	if cmd != "ping" {
		t.Errorf("command = %q, want case-folded ping", cmd)
	}
	if len(args) != 2 || args[0] != "a" || args[1] != "b" {
		t.Errorf("args = %v", args)
	}
	if noPrefix != "Ping  a   b" {
		t.Errorf("noPrefix = %q", noPrefix)
	}

	cmd, args, _ = SplitCommand(".", ".")
	if cmd != "" || args != nil {
		t.Errorf("bare prefix: command %q args %v, want empty", cmd, args)
	}
}
