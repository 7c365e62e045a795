package pg

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nextlevelbuilder/sylph/internal/store"
)

// New creates all stores backed by the given Postgres pool.
func New(db *sql.DB) *store.Stores {
	s := &pgStores{
		db:       db,
		users:    make(map[string]*store.User),
		chats:    make(map[string]*store.Chat),
		settings: make(map[string]*store.Settings),
	}
	return store.NewStores(
		(*userStore)(s), (*chatStore)(s), (*settingsStore)(s), (*statStore)(s),
		s.Flush,
		func() error {
			err := s.Flush()
			if cerr := db.Close(); err == nil {
				err = cerr
			}
			return err
		},
	)
}

type pgStores struct {
	db *sql.DB
	mu sync.Mutex

	// Live records, mutated in place by the dispatch loop and upserted on Flush.
	users    map[string]*store.User
	chats    map[string]*store.Chat
	settings map[string]*store.Settings
}

// Flush upserts every cached record. Stats are written through on Bump and
// need no flushing.
func (s *pgStores) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for jid, u := range s.users {
		if err := s.upsertPayload("users", jid, u); err != nil {
			return err
		}
	}
	for jid, c := range s.chats {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode chat %s: %w", jid, err)
		}
		_, err = s.db.Exec(
			`INSERT INTO chats (id, jid, data, allowed, updated_at)
			 VALUES ($1, $2, $3, $4, now())
			 ON CONFLICT (jid) DO UPDATE SET data = $3, allowed = $4, updated_at = now()`,
			uuid.Must(uuid.NewV7()), jid, data, pq.Array(c.Allowed),
		)
		if err != nil {
			return fmt.Errorf("flush chat %s: %w", jid, err)
		}
	}
	for jid, rec := range s.settings {
		if err := s.upsertPayload("settings", jid, rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *pgStores) upsertPayload(table, jid string, rec any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", table, jid, err)
	}
	_, err = s.db.Exec(
		fmt.Sprintf(`INSERT INTO %s (id, jid, data, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (jid) DO UPDATE SET data = $3, updated_at = now()`, table),
		uuid.Must(uuid.NewV7()), jid, data,
	)
	if err != nil {
		return fmt.Errorf("flush %s %s: %w", table, jid, err)
	}
	return nil
}

type userStore pgStores

func (v *userStore) GetOrCreate(jid, name string) *store.User {
	s := (*pgStores)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[jid]; ok {
		if !u.Registered && u.Name == "" {
			u.Name = name
		}
		return u
	}
	var u *store.User
	if raw, ok := loadPayload(s.db, `SELECT data FROM users WHERE jid = $1`, jid); ok {
		u = store.HealUser(raw, name)
	} else {
		u = store.DefaultUser(name)
	}
	s.users[jid] = u
	return u
}

type chatStore pgStores

func (v *chatStore) GetOrCreate(jid string) *store.Chat {
	s := (*pgStores)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.chats[jid]; ok {
		return c
	}
	var c *store.Chat
	if raw, ok := loadPayload(s.db, `SELECT data FROM chats WHERE jid = $1`, jid); ok {
		c = store.HealChat(raw)
	} else {
		c = store.DefaultChat()
	}
	s.chats[jid] = c
	return c
}

type settingsStore pgStores

func (v *settingsStore) GetOrCreate(botJID string) *store.Settings {
	s := (*pgStores)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.settings[botJID]; ok {
		return rec
	}
	var rec *store.Settings
	if raw, ok := loadPayload(s.db, `SELECT data FROM settings WHERE jid = $1`, botJID); ok {
		rec = store.HealSettings(raw)
	} else {
		rec = store.DefaultSettings()
	}
	s.settings[botJID] = rec
	return rec
}

type statStore pgStores

func (v *statStore) Get(plugin string) *store.Stat {
	s := (*pgStores)(v)
	var st store.Stat
	err := s.db.QueryRow(
		`SELECT total, success, last, last_success FROM stats WHERE plugin = $1`, plugin,
	).Scan(&st.Total, &st.Success, &st.Last, &st.LastSuccess)
	if err != nil {
		return nil
	}
	return &st
}

// Bump writes counters through: stats feed dashboards on other nodes, so
// they must not wait for a flush cycle.
func (v *statStore) Bump(plugin string, success bool, nowMS int64) {
	s := (*pgStores)(v)
	succ := 0
	lastSuccess := int64(0)
	if success {
		succ = 1
		lastSuccess = nowMS
	}
	_, err := s.db.Exec(
		`INSERT INTO stats (id, plugin, total, success, last, last_success)
		 VALUES ($1, $2, 1, $3, $4, $5)
		 ON CONFLICT (plugin) DO UPDATE SET
		   total = stats.total + 1,
		   success = stats.success + $3,
		   last = $4,
		   last_success = GREATEST(stats.last_success, $5)`,
		uuid.Must(uuid.NewV7()), plugin, succ, nowMS, lastSuccess,
	)
	if err != nil {
		slog.Warn("store stat write failed", "plugin", plugin, "error", err)
	}
}
