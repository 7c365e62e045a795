// Package moderation detects toxic language in message text. The built-in
// word list can be extended with a newline-separated file that is reloaded
// whenever it changes on disk.
package moderation

import (
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// toxicWords is the built-in list. Entries are joined verbatim into one
// alternation, so a dot inside an entry matches any character, which covers
// spaced-out spellings like g.o.r.e.
var toxicWords = []string{
	"g0re", "gore", "g0r3", "g.o.r.e", "sap0", "sap4", "malparido", "malparida",
	"malparidos", "malparidas", "m4lp4rid0", "m4lp4rido", "m4lparido", "malp4rido",
	"m4lparid0", "malp4rid0", "chocha", "chup4la", "chup4l4", "chupalo", "chup4lo",
	"chup4l0", "chupal0", "chupon", "chupameesta", "sabandija", "hijodelagranputa",
	"hijodeputa", "hijadeputa", "hijadelagranputa", "kbron", "kbrona", "cajetuda",
	"laconchadedios", "putita", "putito", "put1t4", "putit4", "putit0", "put1to",
	"put1ta", "pr0stitut4s", "pr0stitutas", "pr05titutas", "pr0stitut45", "prostitut45",
	"prostituta5", "fanax", "f4nax", "drogas", "droga", "dr0g4", "nepe",
	"p3ne", "p3n3", "pen3", "p.e.n.e", "pvt0", "pvto", "put0",
	"hijodelagransetentamilparesdeputa",
	"Chingadamadre", "coño", "c0ño", "coñ0", "c0ñ0", "afeminado", "drog4", "cocaína",
	"marihuana", "chocho", "cagon", "pedorro", "agrandado", "agrandada",
	"pedorra", "cagona", "pinga", "joto", "sape", "mamar", "chigadamadre", "hijueputa",
	"chupa", "caca", "bobo", "boba", "loco", "loca", "chupapolla", "estupido", "estupida",
	"estupidos", "polla", "pollas", "idiota", "maricon", "chucha", "verga", "vrga", "naco",
	"zorra", "zorro", "zorras", "zorros", "pito", "huevon", "huevona", "huevones", "rctmre",
	"mrd", "ctm", "csm", "cepe", "sepe", "sepesito", "cepecito", "cepesito", "hldv", "ptm",
	"baboso", "babosa", "babosos", "babosas", "feo", "fea", "feos", "feas", "mamawebos",
	"chupame", "bolas", "qliao", "imbecil", "embeciles", "kbrones", "cabron", "capullo",
	"carajo", "gorre", "gorreo", "gordo", "gorda", "gordos", "gordas", "sapo",
	"sapa", "mierda", "cerdo", "cerda", "puerco", "puerca", "perra", "perro", "dumb",
	"fuck", "shit", "bullshit", "cunt", "semen", "bitch", "motherfucker", "foker",
	"fucking", "puta", "puto", "pendejo", "culiao", "imbécil",
	"estúpido", "marica",
}

// Classifier matches message text against a word list.
type Classifier struct {
	mu    sync.RWMutex
	re    *regexp.Regexp
	extra []string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewClassifier builds a classifier over the built-in list.
func NewClassifier() *Classifier {
	c := &Classifier{}
	c.recompile()
	return c
}

func compile(words []string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(` + strings.Join(words, "|") + `)\b`)
}

func (c *Classifier) recompile() {
	words := make([]string, 0, len(toxicWords)+len(c.extra))
	words = append(words, toxicWords...)
	words = append(words, c.extra...)
	re := compile(words)
	c.mu.Lock()
	c.re = re
	c.mu.Unlock()
}

// IsToxic reports whether text contains a listed word.
func (c *Classifier) IsToxic(text string) bool {
	if text == "" {
		return false
	}
	c.mu.RLock()
	re := c.re
	c.mu.RUnlock()
	return re.MatchString(text)
}

// LoadExtra reads additional words from path, one per line, and recompiles.
// Blank lines and lines starting with # are skipped.
func (c *Classifier) LoadExtra(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var words []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, regexp.QuoteMeta(line))
	}
	c.mu.Lock()
	c.extra = words
	c.mu.Unlock()
	c.recompile()
	return nil
}

// Watch reloads the extra word file whenever it is written. Call Close to
// stop the watcher.
func (c *Classifier) Watch(path string) error {
	if err := c.LoadExtra(path); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return err
	}
	c.watcher = w
	c.done = make(chan struct{})

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := c.LoadExtra(path); err != nil {
						slog.Warn("moderation: reload word list failed", "path", path, "error", err)
					} else {
						slog.Info("moderation: word list reloaded", "path", path)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("moderation: watcher error", "error", err)
			case <-c.done:
				return
			}
		}
	}()
	return nil
}

// Close stops an active file watcher.
func (c *Classifier) Close() {
	if c.watcher != nil {
		close(c.done)
		c.watcher.Close()
		c.watcher = nil
	}
}
