// Package file implements the durable stores as a single JSON snapshot on
// disk, matching the database layout of the original deployment: one
// document with users, chats, settings and stats sections keyed by JID or
// plugin name. Everything lives in memory behind a mutex; Flush writes the
// snapshot atomically. An empty path keeps the store memory-only, which is
// what the tests use.
package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nextlevelbuilder/sylph/internal/store"
)

type snapshot struct {
	Users    map[string]json.RawMessage `json:"users"`
	Chats    map[string]json.RawMessage `json:"chats"`
	Settings map[string]json.RawMessage `json:"settings"`
	Stats    map[string]json.RawMessage `json:"stats"`
}

// DB is the shared state behind the four store views.
type DB struct {
	mu   sync.RWMutex
	path string

	users    map[string]*store.User
	chats    map[string]*store.Chat
	settings map[string]*store.Settings
	stats    map[string]*store.Stat
}

// Open loads the snapshot at path (missing file is an empty database) and
// returns the store container. path == "" keeps the database in memory.
func Open(path string) (*store.Stores, error) {
	db := &DB{
		path:     path,
		users:    make(map[string]*store.User),
		chats:    make(map[string]*store.Chat),
		settings: make(map[string]*store.Settings),
		stats:    make(map[string]*store.Stat),
	}
	if path != "" {
		if err := db.load(); err != nil {
			return nil, err
		}
	}
	return store.NewStores(
		(*userView)(db), (*chatView)(db), (*settingsView)(db), (*statView)(db),
		db.Flush, db.Flush,
	), nil
}

func (db *DB) load() error {
	data, err := os.ReadFile(db.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read database: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse database %s: %w", db.path, err)
	}
	// Heal every record on load; records written by older builds may have
	// missing or wrong-typed fields.
	for jid, raw := range snap.Users {
		db.users[jid] = store.HealUser(raw, "")
	}
	for jid, raw := range snap.Chats {
		db.chats[jid] = store.HealChat(raw)
	}
	for jid, raw := range snap.Settings {
		db.settings[jid] = store.HealSettings(raw)
	}
	for name, raw := range snap.Stats {
		db.stats[name] = store.HealStat(raw)
	}
	return nil
}

// Flush writes the snapshot atomically (temp file + rename).
func (db *DB) Flush() error {
	if db.path == "" {
		return nil
	}
	db.mu.RLock()
	out := struct {
		Users    map[string]*store.User     `json:"users"`
		Chats    map[string]*store.Chat     `json:"chats"`
		Settings map[string]*store.Settings `json:"settings"`
		Stats    map[string]*store.Stat     `json:"stats"`
	}{db.users, db.chats, db.settings, db.stats}
	data, err := json.MarshalIndent(out, "", " ")
	db.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode database: %w", err)
	}

	if dir := filepath.Dir(db.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database dir: %w", err)
		}
	}
	tmp := db.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write database: %w", err)
	}
	if err := os.Rename(tmp, db.path); err != nil {
		return fmt.Errorf("replace database: %w", err)
	}
	return nil
}

type userView DB

func (v *userView) GetOrCreate(jid, name string) *store.User {
	db := (*DB)(v)
	db.mu.Lock()
	defer db.mu.Unlock()
	if u, ok := db.users[jid]; ok {
		if !u.Registered && u.Name == "" {
			u.Name = name
		}
		return u
	}
	u := store.DefaultUser(name)
	db.users[jid] = u
	return u
}

type chatView DB

func (v *chatView) GetOrCreate(jid string) *store.Chat {
	db := (*DB)(v)
	db.mu.Lock()
	defer db.mu.Unlock()
	if c, ok := db.chats[jid]; ok {
		if c.Allowed == nil {
			c.Allowed = []string{}
		}
		return c
	}
	c := store.DefaultChat()
	db.chats[jid] = c
	return c
}

type settingsView DB

func (v *settingsView) GetOrCreate(botJID string) *store.Settings {
	db := (*DB)(v)
	db.mu.Lock()
	defer db.mu.Unlock()
	if s, ok := db.settings[botJID]; ok {
		return s
	}
	s := store.DefaultSettings()
	db.settings[botJID] = s
	return s
}

type statView DB

func (v *statView) Get(plugin string) *store.Stat {
	db := (*DB)(v)
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.stats[plugin]
}

func (v *statView) Bump(plugin string, success bool, nowMS int64) {
	db := (*DB)(v)
	db.mu.Lock()
	defer db.mu.Unlock()
	s, ok := db.stats[plugin]
	if !ok {
		s = &store.Stat{}
		db.stats[plugin] = s
	}
	s.Bump(success, nowMS)
}
