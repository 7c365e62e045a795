package store

// UserStore holds per-sender records. GetOrCreate returns the live record;
// callers mutate it in place within their message turn and the backend
// persists on Flush. Synchronous semantics: no call here performs I/O that
// can observe another in-flight message's partial update.
type UserStore interface {
	GetOrCreate(jid, name string) *User
}

// ChatStore holds per-chat records.
type ChatStore interface {
	GetOrCreate(jid string) *Chat
}

// SettingsStore holds per-connection settings records.
type SettingsStore interface {
	GetOrCreate(botJID string) *Settings
}

// StatStore holds per-plugin usage counters.
type StatStore interface {
	Get(plugin string) *Stat
	Bump(plugin string, success bool, nowMS int64)
}

// Stores is the top-level container for all storage backends, injected into
// the dispatch loop so it never reaches into ambient global state.
type Stores struct {
	Users    UserStore
	Chats    ChatStore
	Settings SettingsStore
	Stats    StatStore

	flush func() error
	close func() error
}

// NewStores assembles a container. flush and close may be nil.
func NewStores(users UserStore, chats ChatStore, settings SettingsStore, stats StatStore, flush, close func() error) *Stores {
	return &Stores{Users: users, Chats: chats, Settings: settings, Stats: stats, flush: flush, close: close}
}

// Flush persists pending changes to the backend.
func (s *Stores) Flush() error {
	if s.flush == nil {
		return nil
	}
	return s.flush()
}

// Close flushes and releases the backend.
func (s *Stores) Close() error {
	if s.close == nil {
		return s.Flush()
	}
	return s.close()
}
