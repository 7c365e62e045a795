package plugin

import (
	"github.com/nextlevelbuilder/sylph/internal/store"
	"github.com/nextlevelbuilder/sylph/internal/wa"
)

// Roles resolves the privilege tiers for a sender. Owner, moderator and
// premium lists come from configuration as phone numbers in any formatting;
// comparison is always by canonical digits.
type Roles struct {
	Owners []string
	Mods   []string
	Prems  []string
	Decode wa.DecodeFunc
}

func (r Roles) decode(jid string) string {
	if r.Decode == nil {
		return jid
	}
	if full := r.Decode(jid); full != "" {
		return full
	}
	return jid
}

// IsRootOwner reports whether sender is the bot's own identity or one of
// the configured owner numbers.
func (r Roles) IsRootOwner(sender string, self wa.Identity) bool {
	num := wa.Normalize(r.decode(sender))
	if num == "" {
		return false
	}
	if n := wa.Normalize(r.decode(self.JID)); n != "" && n == num {
		return true
	}
	for _, o := range r.Owners {
		if wa.Digits(o) == num {
			return true
		}
	}
	return false
}

// IsOwner: root-owners, plus the bot talking to itself.
func (r Roles) IsOwner(isROwner, fromMe bool) bool {
	return isROwner || fromMe
}

// IsModerator: owners are implicitly moderators.
func (r Roles) IsModerator(sender string, isOwner bool) bool {
	if isOwner {
		return true
	}
	num := wa.Normalize(r.decode(sender))
	if num == "" {
		return false
	}
	for _, m := range r.Mods {
		if wa.Digits(m) == num {
			return true
		}
	}
	return false
}

// IsPremium: root-owners always, then the configured list, then the durable
// premium flag on the user record.
func (r Roles) IsPremium(sender string, isROwner bool, user *store.User) bool {
	if isROwner {
		return true
	}
	num := wa.Normalize(r.decode(sender))
	if num != "" {
		for _, p := range r.Prems {
			if wa.Digits(p) == num {
				return true
			}
		}
	}
	return user != nil && user.Premium
}
