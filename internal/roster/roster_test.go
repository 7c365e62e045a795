package roster

import (
	"testing"

	"github.com/nextlevelbuilder/sylph/internal/wa"
)

func TestFindCanonicalNumericOnly(t *testing.T) {
	// One entry that matches only by canonical digits: different domain,
	// device suffix, no exact-string equality possible.
	roster := []wa.GroupParticipant{
		{ID: "111@s.whatsapp.net"},
		{ID: "555:12@lid", Admin: "admin"},
	}
	got := Find("555@s.whatsapp.net", roster, Options{})
	if got == nil {
		t.Fatal("canonical-numeric strategy should have matched")
	}
	if got.ID != "555:12@lid" {
		t.Errorf("matched %q", got.ID)
	}
}

func TestFindComparatorPrecedence(t *testing.T) {
	// A comparator that maps an opaque alias onto a roster entry; the
	// cascade must try it before any digit-based strategy.
	cmp := func(a, b string) bool {
		return (a == "alias@lid" && b == "777@s.whatsapp.net") ||
			(b == "alias@lid" && a == "777@s.whatsapp.net")
	}
	roster := []wa.GroupParticipant{{ID: "alias@lid"}}
	if got := Find("777@s.whatsapp.net", roster, Options{SameUser: cmp}); got == nil {
		t.Fatal("comparator strategy should have matched")
	}
}

func TestFindPanickyComparatorFallsThrough(t *testing.T) {
	cmp := func(a, b string) bool { panic("bad jid") }
	roster := []wa.GroupParticipant{{ID: "42:7@s.whatsapp.net"}}
	if got := Find("42@s.whatsapp.net", roster, Options{SameUser: cmp}); got == nil {
		t.Fatal("cascade must continue past a panicking comparator")
	}
}

func TestFindExactLastResort(t *testing.T) {
	roster := []wa.GroupParticipant{{JID: "weird-id"}}
	if got := Find("weird-id", roster, Options{}); got == nil {
		t.Fatal("exact string fallback should have matched")
	}
}

func TestFindMisses(t *testing.T) {
	roster := []wa.GroupParticipant{{ID: "111@s.whatsapp.net"}}
	if got := Find("222@s.whatsapp.net", roster, Options{}); got != nil {
		t.Fatalf("unexpected match: %+v", got)
	}
	if got := Find("", roster, Options{}); got != nil {
		t.Fatal("empty target must not match")
	}
	if got := Find("111@s.whatsapp.net", nil, Options{}); got != nil {
		t.Fatal("empty roster must not match")
	}
}

func TestAdminStatus(t *testing.T) {
	roster := []wa.GroupParticipant{
		{ID: "100@s.whatsapp.net", Admin: "superadmin"},
		{ID: "200:3@s.whatsapp.net", Admin: "admin"},
		{ID: "300@s.whatsapp.net"},
		{ID: "999@s.whatsapp.net", Admin: "admin"},
	}
	m := &wa.Message{
		Chat:    "g@g.us",
		IsGroup: true,
		Sender:  "200@s.whatsapp.net",
	}
	st := AdminStatus(m, roster, []wa.Identity{{JID: "999:1@s.whatsapp.net"}}, Options{})
	if !st.IsAdmin || st.IsSuperAdmin {
		t.Errorf("sender flags = admin:%v super:%v", st.IsAdmin, st.IsSuperAdmin)
	}
	if !st.IsBotAdmin {
		t.Error("bot should resolve as admin despite device suffix")
	}

	m.Sender = "100@s.whatsapp.net"
	st = AdminStatus(m, roster, nil, Options{})
	if !st.IsSuperAdmin {
		t.Error("superadmin role must map to IsSuperAdmin")
	}

	m.Sender = "300@s.whatsapp.net"
	st = AdminStatus(m, roster, nil, Options{})
	if st.IsAdmin || st.IsSuperAdmin {
		t.Error("plain member must not be admin")
	}
}

func TestAdminStatusSelfMessage(t *testing.T) {
	// Sender is not in the roster as itself, but it is the bot identity
	// and the roster carries the bot under an opaque alias.
	roster := []wa.GroupParticipant{
		{ID: "botalias@lid", Admin: "admin"},
	}
	m := &wa.Message{
		Chat:    "g@g.us",
		IsGroup: true,
		Sender:  "999:55@s.whatsapp.net",
	}
	st := AdminStatus(m, roster, []wa.Identity{{JID: "999:55@s.whatsapp.net", LID: "botalias@lid"}}, Options{})
	if st.Sender == nil {
		t.Fatal("self-message sender should be synthesized from the bot participant")
	}
	if !st.IsAdmin || !st.IsBotAdmin {
		t.Errorf("flags = %+v", st)
	}
}

func TestAdminStatusNonGroup(t *testing.T) {
	m := &wa.Message{Chat: "1@s.whatsapp.net", Sender: "1@s.whatsapp.net"}
	st := AdminStatus(m, []wa.GroupParticipant{{ID: "1@s.whatsapp.net", Admin: "admin"}}, nil, Options{})
	if st.IsAdmin || st.IsBotAdmin || st.Sender != nil {
		t.Errorf("non-group must short-circuit to zero status, got %+v", st)
	}
}
