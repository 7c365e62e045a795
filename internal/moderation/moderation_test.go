package moderation

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsToxic(t *testing.T) {
	c := NewClassifier()

	cases := []struct {
		text string
		want bool
	}{
		{"hola como estas", false},
		{"", false},
		{"eres un idiota", true},
		{"ERES UN IDIOTA", true},
		{"idiotez total", false}, // word boundary, not substring
		{"what the fuck", true},
		{"fucking great", true},
		{"g.o.r.e content", true},
	}
	for _, tc := range cases {
		if got := c.IsToxic(tc.text); got != tc.want {
			t.Errorf("IsToxic(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestLoadExtra(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "words.txt")
	if err := os.WriteFile(path, []byte("# comment\nzorp\n\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewClassifier()
	if c.IsToxic("total zorp") {
		t.Fatal("zorp should not match before loading")
	}
	if err := c.LoadExtra(path); err != nil {
		t.Fatal(err)
	}
	if !c.IsToxic("total zorp") {
		t.Error("zorp should match after loading")
	}
	if c.IsToxic("comment") {
		t.Error("comment lines must be skipped")
	}
}

func TestLoadExtraEscapesMeta(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "words.txt")
	if err := os.WriteFile(path, []byte("a+b\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := NewClassifier()
	if err := c.LoadExtra(path); err != nil {
		t.Fatal(err)
	}
	if c.IsToxic("aab") {
		t.Error("extra words must be treated literally")
	}
}
