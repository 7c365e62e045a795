package roster

import (
	"github.com/nextlevelbuilder/sylph/internal/wa"
)

// RoleSuperAdmin is the roster role of the group creator.
const RoleSuperAdmin = "superadmin"

// Status is the resolved admin standing of one message inside its group.
type Status struct {
	IsAdmin      bool
	IsSuperAdmin bool
	IsBotAdmin   bool
	Sender       *Participant
	Bot          *Participant
}

// AdminStatus resolves the sender and the bot inside the roster and derives
// the admin flags. bots is the set of identities representing "this bot":
// the connection's own identity plus, when operating a fleet, the primary
// connection's global identity. Non-group messages short-circuit to the zero
// Status without touching the roster.
func AdminStatus(m *wa.Message, roster []wa.GroupParticipant, bots []wa.Identity, opts Options) Status {
	if m == nil || !m.IsGroup || len(roster) == 0 {
		return Status{}
	}

	senderFull := opts.decode(m.Sender)
	senderNum := wa.Normalize(senderFull)

	var botJIDs []string
	for _, b := range bots {
		botJIDs = append(botJIDs, b.JIDs()...)
	}
	botNums := make(map[string]bool, len(botJIDs))
	for _, j := range botJIDs {
		if n := wa.Normalize(opts.decode(j)); n != "" {
			botNums[n] = true
		}
	}

	normalized := BuildAll(roster, opts)

	// Sender: cascade first, then a numeric-only fallback scan.
	var sender *Participant
	if raw := Find(m.Sender, roster, opts); raw != nil {
		p := Build(*raw, opts)
		sender = &p
	} else if senderNum != "" {
		for i := range normalized {
			if normalized[i].Num == senderNum || normalized[i].Full == senderFull || normalized[i].ID == m.Sender {
				sender = &normalized[i]
				break
			}
		}
	}

	// Bot: each candidate identifier through the cascade, first hit wins,
	// then a canonical-number membership scan.
	var bot *Participant
	for _, j := range botJIDs {
		if raw := Find(j, roster, opts); raw != nil {
			p := Build(*raw, opts)
			bot = &p
			break
		}
	}
	if bot == nil {
		for i := range normalized {
			if botNums[normalized[i].Num] {
				bot = &normalized[i]
				break
			}
		}
	}

	// Self-message: the sender may itself be one of the bot identities.
	if sender == nil && bot != nil && senderMatchesBot(m.Sender, senderFull, senderNum, botJIDs, botNums, opts) {
		clone := *bot
		sender = &clone
	}

	return Status{
		IsAdmin:      sender != nil && sender.IsAdmin,
		IsSuperAdmin: sender != nil && sender.Role == RoleSuperAdmin,
		IsBotAdmin:   bot != nil && bot.IsAdmin,
		Sender:       sender,
		Bot:          bot,
	}
}

func senderMatchesBot(sender, senderFull, senderNum string, botJIDs []string, botNums map[string]bool, opts Options) bool {
	for _, bj := range botJIDs {
		if wa.Same(opts.SameUser, bj, sender) || wa.Same(opts.SameUser, bj, senderFull) {
			return true
		}
		if wa.Clean(bj) != "" && wa.Clean(bj) == wa.Clean(sender) {
			return true
		}
		if n := wa.Normalize(bj); n != "" && n == senderNum {
			return true
		}
	}
	return senderNum != "" && botNums[senderNum]
}
