package plugin

// DenyKind identifies which requirement a caller failed. Each kind maps to a
// fixed user-facing message in the dispatch layer.
type DenyKind string

const (
	DenyNone     DenyKind = ""
	DenyROwner   DenyKind = "rowner"
	DenyOwner    DenyKind = "owner"
	DenyMods     DenyKind = "mods"
	DenyPremium  DenyKind = "premium"
	DenyAdmin    DenyKind = "admin"
	DenyBotAdmin DenyKind = "botAdmin"
	DenyGroup    DenyKind = "group"
	DenyPrivate  DenyKind = "private"
	DenyUnreg    DenyKind = "unreg"
	DenyRestrict DenyKind = "restrict"
)

// Capabilities is the caller's resolved capability set at gate time.
type Capabilities struct {
	ROwner     bool
	Owner      bool
	Mods       bool
	Prems      bool
	Admin      bool
	BotAdmin   bool
	InGroup    bool
	Registered bool
}

// Gate evaluates a plugin's requirement flags against the capability set.
// Checks run in a fixed precedence and the first failing one wins, so a
// plugin requiring both admin and premium reports the first violated
// requirement deterministically. Returns (DenyNone, true) on acceptance.
func Gate(p *Plugin, caps Capabilities) (DenyKind, bool) {
	switch {
	case p.RootOwner && p.Owner && !(caps.ROwner || caps.Owner):
		return DenyOwner, false
	case p.RootOwner && !caps.ROwner:
		return DenyROwner, false
	case p.Owner && !caps.Owner:
		return DenyOwner, false
	case p.Mods && !caps.Mods:
		return DenyMods, false
	case p.Premium && !caps.Prems:
		return DenyPremium, false
	case p.Admin && !caps.Admin:
		return DenyAdmin, false
	case p.Private && caps.InGroup:
		return DenyPrivate, false
	case p.Group && !caps.InGroup:
		return DenyGroup, false
	case p.Register && !caps.Registered:
		return DenyUnreg, false
	}
	return DenyNone, true
}
