// Package store defines the durable records the dispatch pipeline reads and
// writes (users, chats, per-connection settings and per-plugin stats) plus
// the backend interfaces. Records are healed on every access: missing or
// wrong-typed fields are backfilled with defaults, as a forward-compatible
// schema migration for databases written by older builds.
package store

import (
	"encoding/json"
)

// User is the durable per-sender record, keyed by sender JID.
type User struct {
	Exp   int `json:"exp"`
	Coin  int `json:"coin"`
	Bank  int `json:"bank"`
	Level int `json:"level"`

	JoinCount int `json:"joincount"`
	Diamond   int `json:"diamond"`
	Health    int `json:"health"`
	Crime     int `json:"crime"`

	LastAdventure int64 `json:"lastadventure"`
	LastClaim     int64 `json:"lastclaim"`
	LastCofre     int64 `json:"lastcofre"`
	LastDiamantes int64 `json:"lastdiamantes"`
	LastCode      int64 `json:"lastcode"`
	LastCodeReg   int64 `json:"lastcodereg"`
	LastDuel      int64 `json:"lastduel"`
	LastPago      int64 `json:"lastpago"`
	LastMining    int64 `json:"lastmining"`

	// Spam is the unix-millisecond timestamp of the last accepted command.
	Spam      int64 `json:"spam"`
	Antispam  int   `json:"antispam"`
	Antispam2 bool  `json:"antispam2"`
	Warn      int   `json:"warn"`
	Warns     int   `json:"warns"`

	Muted        bool   `json:"muto"`
	Registered   bool   `json:"registered"`
	Banned       bool   `json:"banned"`
	BannedReason string `json:"bannedReason,omitempty"`
	UseDocument  bool   `json:"useDocument"`
	Premium      bool   `json:"premium"`
	PremiumTime  int64  `json:"premiumTime"`

	Name         string  `json:"name"`
	Genre        string  `json:"genre"`
	Birth        string  `json:"birth"`
	Marry        string  `json:"marry"`
	Description  string  `json:"description"`
	PackStickers *string `json:"packstickers"`
	Role         string  `json:"role"`

	Age       int    `json:"age"`
	RegTime   int64  `json:"regTime"`
	AFK       int64  `json:"afk"`
	AFKReason string `json:"afkReason"`
}

// DefaultUser returns a fresh record for a first-seen sender.
func DefaultUser(name string) *User {
	return &User{
		Coin:      10,
		JoinCount: 1,
		Diamond:   3,
		Health:    100,
		Name:      name,
		Role:      "Nuv",
		Age:       -1,
		RegTime:   -1,
		AFK:       -1,
	}
}

// Chat is the durable per-chat record, keyed by chat JID.
type Chat struct {
	IsBanned    bool `json:"isBanned"`
	Welcome     bool `json:"welcome"`
	Detect      bool `json:"detect"`
	AutoLevelUp bool `json:"autolevelup"`
	AutoAccept  bool `json:"autoAceptar"`
	AutoReject  bool `json:"autoRechazar"`
	AutoSticker bool `json:"autosticker"`
	AntiBot     bool `json:"antiBot"`
	AntiBot2    bool `json:"antiBot2"`
	AdminOnly   bool `json:"modoadmin"`
	AntiLink    bool `json:"antiLink"`
	AntiFake    bool `json:"antifake"`
	AntiImg     bool `json:"antiImg"`
	AntiToxic   bool `json:"antitoxic"`
	AntiLag     bool `json:"antiLag"`
	Reaction    bool `json:"reaction"`
	NSFW        bool `json:"nsfw"`
	Delete      bool `json:"delete"`

	Responder     bool   `json:"autoresponder"`
	ResponderText string `json:"sAutoresponder"`

	Expired int64 `json:"expired"`

	// Allowed lists the bot JIDs permitted to respond in this chat when
	// AntiLag restricts responses to a single connection. Never nil after
	// healing.
	Allowed []string `json:"per"`
}

// DefaultChat returns a fresh chat record.
func DefaultChat() *Chat {
	return &Chat{
		Welcome:  true,
		Detect:   true,
		AntiLink: true,
		Allowed:  []string{},
	}
}

// Settings is the durable per-connection record, keyed by the bot's own JID.
type Settings struct {
	Self        bool `json:"self"`
	Restrict    bool `json:"restrict"`
	SubBots     bool `json:"jadibotmd"`
	AntiPrivate bool `json:"antiPrivate"`
	AutoRead    bool `json:"autoread"`
	Status      int  `json:"status"`
}

// DefaultSettings returns a fresh settings record.
func DefaultSettings() *Settings {
	return &Settings{Restrict: true, SubBots: true}
}

// Stat is the durable per-plugin usage record. Counters are monotonically
// non-decreasing and Total >= Success always holds.
type Stat struct {
	Total       int64 `json:"total"`
	Success     int64 `json:"success"`
	Last        int64 `json:"last"`
	LastSuccess int64 `json:"lastSuccess"`
}

// Bump records one invocation at the given unix-millisecond timestamp.
// First use yields Total=1.
func (s *Stat) Bump(success bool, nowMS int64) {
	if s.Total < 0 {
		s.Total = 0
	}
	if s.Success < 0 || s.Success > s.Total {
		s.Success = 0
	}
	s.Total++
	s.Last = nowMS
	if success {
		s.Success++
		s.LastSuccess = nowMS
	}
}

// --- lenient decoding -------------------------------------------------------
//
// Databases written by older builds (or by hand) may carry wrong-typed or
// missing fields. Decoding goes through a raw map first, coercing each field
// and backfilling defaults, so a record is always structurally valid after
// load. Missing fields heal to defaults; wrong-typed numerics heal to
// defaults rather than zero so semantic defaults (age=-1) survive.

type rawRecord map[string]json.RawMessage

func (r rawRecord) intOr(key string, def int64) int64 {
	raw, ok := r[key]
	if !ok {
		return def
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return def
	}
	return int64(f)
}

func (r rawRecord) boolOr(key string, def bool) bool {
	raw, ok := r[key]
	if !ok {
		return def
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return def
	}
	return b
}

func (r rawRecord) stringOr(key string, def string) string {
	raw, ok := r[key]
	if !ok {
		return def
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return def
	}
	return s
}

func (r rawRecord) stringsOr(key string) []string {
	raw, ok := r[key]
	if !ok {
		return []string{}
	}
	var ss []string
	if err := json.Unmarshal(raw, &ss); err != nil || ss == nil {
		return []string{}
	}
	return ss
}

// HealUser decodes raw JSON into a structurally valid User. name seeds the
// display name for unregistered records that lack one.
func HealUser(raw json.RawMessage, name string) *User {
	var r rawRecord
	if len(raw) == 0 || json.Unmarshal(raw, &r) != nil {
		return DefaultUser(name)
	}
	def := DefaultUser("")
	u := &User{
		Exp:           int(r.intOr("exp", 0)),
		Coin:          int(r.intOr("coin", int64(def.Coin))),
		Bank:          int(r.intOr("bank", 0)),
		Level:         int(r.intOr("level", 0)),
		JoinCount:     int(r.intOr("joincount", int64(def.JoinCount))),
		Diamond:       int(r.intOr("diamond", int64(def.Diamond))),
		Health:        int(r.intOr("health", int64(def.Health))),
		Crime:         int(r.intOr("crime", 0)),
		LastAdventure: r.intOr("lastadventure", 0),
		LastClaim:     r.intOr("lastclaim", 0),
		LastCofre:     r.intOr("lastcofre", 0),
		LastDiamantes: r.intOr("lastdiamantes", 0),
		LastCode:      r.intOr("lastcode", 0),
		LastCodeReg:   r.intOr("lastcodereg", 0),
		LastDuel:      r.intOr("lastduel", 0),
		LastPago:      r.intOr("lastpago", 0),
		LastMining:    r.intOr("lastmining", 0),
		Spam:          r.intOr("spam", 0),
		Antispam:      int(r.intOr("antispam", 0)),
		Antispam2:     r.boolOr("antispam2", false),
		Warn:          int(r.intOr("warn", 0)),
		Warns:         int(r.intOr("warns", 0)),
		Muted:         r.boolOr("muto", false),
		Registered:    r.boolOr("registered", false),
		Banned:        r.boolOr("banned", false),
		BannedReason:  r.stringOr("bannedReason", ""),
		UseDocument:   r.boolOr("useDocument", false),
		Premium:       r.boolOr("premium", false),
		PremiumTime:   r.intOr("premiumTime", 0),
		Name:          r.stringOr("name", ""),
		Genre:         r.stringOr("genre", ""),
		Birth:         r.stringOr("birth", ""),
		Marry:         r.stringOr("marry", ""),
		Description:   r.stringOr("description", ""),
		Role:          r.stringOr("role", def.Role),
		Age:           int(r.intOr("age", int64(def.Age))),
		RegTime:       r.intOr("regTime", def.RegTime),
		AFK:           r.intOr("afk", def.AFK),
		AFKReason:     r.stringOr("afkReason", ""),
	}
	if s := r.stringOr("packstickers", ""); s != "" {
		u.PackStickers = &s
	}
	if !u.Premium {
		u.PremiumTime = 0
	}
	if !u.Registered && u.Name == "" {
		u.Name = name
	}
	return u
}

// HealChat decodes raw JSON into a structurally valid Chat. The allow-list
// is never nil afterwards.
func HealChat(raw json.RawMessage) *Chat {
	var r rawRecord
	if len(raw) == 0 || json.Unmarshal(raw, &r) != nil {
		return DefaultChat()
	}
	return &Chat{
		IsBanned:      r.boolOr("isBanned", false),
		Welcome:       r.boolOr("welcome", true),
		Detect:        r.boolOr("detect", true),
		AutoLevelUp:   r.boolOr("autolevelup", false),
		AutoAccept:    r.boolOr("autoAceptar", false),
		AutoReject:    r.boolOr("autoRechazar", false),
		AutoSticker:   r.boolOr("autosticker", false),
		AntiBot:       r.boolOr("antiBot", false),
		AntiBot2:      r.boolOr("antiBot2", false),
		AdminOnly:     r.boolOr("modoadmin", false),
		AntiLink:      r.boolOr("antiLink", true),
		AntiFake:      r.boolOr("antifake", false),
		AntiImg:       r.boolOr("antiImg", false),
		AntiToxic:     r.boolOr("antitoxic", false),
		AntiLag:       r.boolOr("antiLag", false),
		Reaction:      r.boolOr("reaction", false),
		NSFW:          r.boolOr("nsfw", false),
		Delete:        r.boolOr("delete", false),
		Responder:     r.boolOr("autoresponder", false),
		ResponderText: r.stringOr("sAutoresponder", ""),
		Expired:       r.intOr("expired", 0),
		Allowed:       r.stringsOr("per"),
	}
}

// HealSettings decodes raw JSON into a structurally valid Settings.
func HealSettings(raw json.RawMessage) *Settings {
	var r rawRecord
	if len(raw) == 0 || json.Unmarshal(raw, &r) != nil {
		return DefaultSettings()
	}
	return &Settings{
		Self:        r.boolOr("self", false),
		Restrict:    r.boolOr("restrict", true),
		SubBots:     r.boolOr("jadibotmd", true),
		AntiPrivate: r.boolOr("antiPrivate", false),
		AutoRead:    r.boolOr("autoread", false),
		Status:      int(r.intOr("status", 0)),
	}
}

// HealStat decodes raw JSON into a structurally valid Stat.
func HealStat(raw json.RawMessage) *Stat {
	var r rawRecord
	if len(raw) == 0 || json.Unmarshal(raw, &r) != nil {
		return &Stat{}
	}
	s := &Stat{
		Total:       r.intOr("total", 0),
		Success:     r.intOr("success", 0),
		Last:        r.intOr("last", 0),
		LastSuccess: r.intOr("lastSuccess", 0),
	}
	if s.Total < 0 {
		s.Total = 0
	}
	if s.Success < 0 || s.Success > s.Total {
		s.Success = s.Total
	}
	return s
}
