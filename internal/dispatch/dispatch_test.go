package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/sylph/internal/plugin"
	"github.com/nextlevelbuilder/sylph/internal/store"
	"github.com/nextlevelbuilder/sylph/internal/store/file"
	"github.com/nextlevelbuilder/sylph/internal/wa"
)

// fakeTransport records outbound calls.
type fakeTransport struct {
	mu        sync.Mutex
	meta      *wa.GroupMetadata
	metaErr   error
	sent      []string
	reacts    []string
	removed   []string
	deleted   []wa.MessageKey
	read      [][]wa.MessageKey
	removeErr error
}

func (f *fakeTransport) GroupMetadata(ctx context.Context, chat string) (*wa.GroupMetadata, error) {
	return f.meta, f.metaErr
}

func (f *fakeTransport) SendText(ctx context.Context, chat, text string, quoted *wa.MessageKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeTransport) React(ctx context.Context, chat string, key wa.MessageKey, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reacts = append(f.reacts, emoji)
	return nil
}

func (f *fakeTransport) RemoveParticipant(ctx context.Context, chat, participant string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, participant)
	return nil
}

func (f *fakeTransport) ReadMessages(ctx context.Context, keys []wa.MessageKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = append(f.read, keys)
	return nil
}

func (f *fakeTransport) DeleteMessage(ctx context.Context, chat string, key wa.MessageKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeTransport) sentContaining(sub string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sent {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

type staticToxic bool

func (s staticToxic) IsToxic(string) bool { return bool(s) }

func memStores(t *testing.T) *store.Stores {
	t.Helper()
	s, err := file.Open("")
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	return s
}

func textEvent(id, chat, participant, text string) *wa.MessageEvent {
	msg, _ := json.Marshal(map[string]any{"conversation": text})
	return &wa.MessageEvent{
		Key: wa.MessageKey{
			ID:          id,
			RemoteJID:   chat,
			Participant: participant,
		},
		Message:  msg,
		PushName: "Tester",
	}
}

func newTestDispatcher(t *testing.T, reg *plugin.Registry, tr *fakeTransport) *Dispatcher {
	t.Helper()
	d := New(&Dispatcher{
		Opts: Options{
			Restrict:       true,
			SpamWindowMS:   3000,
			WarnLimit:      3,
			ToxicWarnLimit: 4,
		},
		Registry:  reg,
		Stores:    memStores(t),
		Transport: tr,
		Toxic:     staticToxic(false),
		Self:      wa.Identity{JID: "999@s.whatsapp.net"},
	})
	// Deterministic clock and randomness for tests.
	base := time.Unix(1700000000, 0)
	d.now = func() time.Time { return base }
	d.randInt = func(n int) int { return 0 }
	return d
}

func newRegistry(t *testing.T, plugins ...*plugin.Plugin) *plugin.Registry {
	t.Helper()
	reg := plugin.NewRegistry(plugin.Literals("."))
	for _, p := range plugins {
		if err := reg.Register(p); err != nil {
			t.Fatal(err)
		}
	}
	return reg
}

const (
	groupChat = "111222333@g.us"
	sender    = "555111@s.whatsapp.net"
)

func TestAtMostOneHandlerExecutes(t *testing.T) {
	var executed []string
	var allRuns []string
	mk := func(name string) *plugin.Plugin {
		return &plugin.Plugin{
			Name:    name,
			Command: plugin.Literal("ping"),
			All: func(ctx context.Context, m *wa.Message) error {
				allRuns = append(allRuns, name)
				return nil
			},
			Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
				executed = append(executed, name)
				return nil
			},
		}
	}
	reg := newRegistry(t, mk("first"), mk("second"), mk("third"))
	tr := &fakeTransport{}
	d := newTestDispatcher(t, reg, tr)

	d.Handle(context.Background(), textEvent("M1", sender, "", ".ping"))

	if len(executed) != 1 || executed[0] != "first" {
		t.Fatalf("executed = %v, want exactly [first]", executed)
	}
	if len(allRuns) != 3 {
		t.Errorf("all-hook runs = %v, want every plugin", allRuns)
	}
}

func TestPermissionPrecedenceAdminBeforePremium(t *testing.T) {
	p := &plugin.Plugin{
		Name:    "locked",
		Command: plugin.Literal("go"),
		Admin:   true,
		Premium: true,
		Group:   true,
		Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
			t.Error("handler must not execute")
			return nil
		},
	}
	reg := newRegistry(t, p)
	tr := &fakeTransport{meta: &wa.GroupMetadata{
		JID: groupChat,
		Participants: []wa.GroupParticipant{
			{ID: sender}, // present but not admin
			{ID: "999@s.whatsapp.net", Admin: "admin"},
		},
	}}
	d := newTestDispatcher(t, reg, tr)
	// Premium caller who is not a group admin.
	d.Roles.Prems = []string{"555111"}

	d.Handle(context.Background(), textEvent("M1", groupChat, sender, ".go"))

	if !tr.sentContaining("ᴀᴅᴍɪɴs ᴅᴇʟ ɢʀᴜᴘᴏ") {
		t.Fatalf("want admin deny reply, got %v", tr.sent)
	}
	for _, s := range tr.sent {
		if strings.Contains(s, "ᴘʀᴇᴍɪᴜᴍ") {
			t.Errorf("premium deny must not be reported before admin: %v", tr.sent)
		}
	}
}

func TestSpamWindow(t *testing.T) {
	runs := 0
	p := &plugin.Plugin{
		Name:    "ping",
		Command: plugin.Literal("ping"),
		Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
			runs++
			return nil
		},
	}
	reg := newRegistry(t, p)
	tr := &fakeTransport{}
	d := newTestDispatcher(t, reg, tr)

	base := time.Unix(1700000000, 0)
	now := base
	d.now = func() time.Time { return now }

	d.Handle(context.Background(), textEvent("M1", sender, "", ".ping"))
	if runs != 1 {
		t.Fatalf("first message: runs = %d, want 1", runs)
	}

	// 2999 ms later: inside the window, rejected silently.
	now = base.Add(2999 * time.Millisecond)
	sent := len(tr.sent)
	d.Handle(context.Background(), textEvent("M2", sender, "", ".ping"))
	if runs != 1 {
		t.Fatalf("inside window: runs = %d, want 1", runs)
	}
	if len(tr.sent) != sent {
		t.Errorf("throttled drop must be silent, got replies %v", tr.sent[sent:])
	}

	// Exactly 3000 ms after the first accepted message: boundary accept.
	now = base.Add(3000 * time.Millisecond)
	d.Handle(context.Background(), textEvent("M3", sender, "", ".ping"))
	if runs != 2 {
		t.Fatalf("boundary message: runs = %d, want 2", runs)
	}
}

func TestWarnEscalation(t *testing.T) {
	p := &plugin.Plugin{
		Name:    "flagged",
		Command: plugin.Literal("bad"),
		Warn:    true,
		Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
			t.Error("flagged handler must not execute for non-privileged callers")
			return nil
		},
	}
	reg := newRegistry(t, p)
	tr := &fakeTransport{}
	d := newTestDispatcher(t, reg, tr)

	base := time.Unix(1700000000, 0)
	now := base
	d.now = func() time.Time { return now }

	for i := 1; i <= 3; i++ {
		d.Handle(context.Background(), textEvent(fmt.Sprintf("M%d", i), groupChat, sender, ".bad"))
		now = now.Add(5 * time.Second)
	}

	if !tr.sentContaining("Advertencia 1/3") || !tr.sentContaining("Advertencia 2/3") || !tr.sentContaining("Advertencia 3/3") {
		t.Fatalf("want escalating warn replies, got %v", tr.sent)
	}
	if len(tr.removed) != 1 || tr.removed[0] != sender {
		t.Fatalf("third warning must attempt removal, got %v", tr.removed)
	}
	u := d.Stores.Users.GetOrCreate(sender, "")
	if u.Warn != 0 {
		t.Errorf("warn counter must reset after removal, got %d", u.Warn)
	}
}

func TestWarnRemovalFailureReported(t *testing.T) {
	p := &plugin.Plugin{
		Name:    "flagged",
		Command: plugin.Literal("bad"),
		Warn:    true,
	}
	reg := newRegistry(t, p)
	tr := &fakeTransport{removeErr: errors.New("not admin")}
	d := newTestDispatcher(t, reg, tr)

	base := time.Unix(1700000000, 0)
	now := base
	d.now = func() time.Time { return now }
	u := d.Stores.Users.GetOrCreate(sender, "")
	u.Warn = 2

	d.Handle(context.Background(), textEvent("M1", groupChat, sender, ".bad"))

	if !tr.sentContaining("No se pudo expulsar") {
		t.Fatalf("removal failure must be reported, got %v", tr.sent)
	}
}

func TestStatsMonotonic(t *testing.T) {
	fails := false
	p := &plugin.Plugin{
		Name:    "ping",
		Command: plugin.Literal("ping"),
		Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
			if fails {
				return errors.New("boom")
			}
			return nil
		},
	}
	reg := newRegistry(t, p)
	tr := &fakeTransport{}
	d := newTestDispatcher(t, reg, tr)

	base := time.Unix(1700000000, 0)
	now := base
	d.now = func() time.Time { return now }

	for i := 0; i < 4; i++ {
		fails = i == 3
		d.Handle(context.Background(), textEvent(fmt.Sprintf("M%d", i), sender, "", ".ping"))
		now = now.Add(5 * time.Second)
	}

	st := d.Stores.Stats.Get("ping")
	if st == nil {
		t.Fatal("stat record missing")
	}
	if st.Total != 4 || st.Success != 3 {
		t.Fatalf("stats = total %d success %d, want 4/3", st.Total, st.Success)
	}
}

func TestEndToEndPing(t *testing.T) {
	runs := 0
	p := &plugin.Plugin{
		Name:    "ping",
		Command: plugin.Literal("ping"),
		Prefix:  plugin.Literal("."),
		Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
			runs++
			return nil
		},
	}
	reg := newRegistry(t, p)
	// Sender absent from the roster, bot is superadmin.
	tr := &fakeTransport{meta: &wa.GroupMetadata{
		JID: groupChat,
		Participants: []wa.GroupParticipant{
			{ID: "999@s.whatsapp.net", Admin: "superadmin"},
		},
	}}
	d := newTestDispatcher(t, reg, tr)
	d.randInt = func(n int) int { return n - 1 } // exp roll yields the max, 10

	d.Handle(context.Background(), textEvent("M1", groupChat, sender, ".ping"))

	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}
	u := d.Stores.Users.GetOrCreate(sender, "")
	wantExp := 10 + plugin.DefaultExp
	if u.Exp != wantExp {
		t.Errorf("user exp = %d, want %d", u.Exp, wantExp)
	}
	st := d.Stores.Stats.Get("ping")
	if st == nil || st.Total != 1 || st.Success != 1 {
		t.Fatalf("stats = %+v, want total 1 success 1", st)
	}
}

func TestBeforeHookIntercepts(t *testing.T) {
	p := &plugin.Plugin{
		Name:    "stateful",
		Command: plugin.Literal("go"),
		Before: func(ctx context.Context, m *wa.Message, env *plugin.Env) (bool, error) {
			return true, nil
		},
		Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
			t.Error("intercepted plugin must not execute")
			return nil
		},
	}
	fallthroughRan := false
	q := &plugin.Plugin{
		Name:    "next",
		Command: plugin.Literal("go"),
		Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
			fallthroughRan = true
			return nil
		},
	}
	reg := newRegistry(t, p, q)
	d := newTestDispatcher(t, reg, &fakeTransport{})

	d.Handle(context.Background(), textEvent("M1", sender, "", ".go"))

	if !fallthroughRan {
		t.Fatal("loop must continue past an intercepting before-hook")
	}
}

func TestBannedUserReply(t *testing.T) {
	p := &plugin.Plugin{
		Name:    "ping",
		Command: plugin.Literal("ping"),
		Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
			t.Error("banned sender must not reach handlers")
			return nil
		},
	}
	reg := newRegistry(t, p)
	tr := &fakeTransport{}
	d := newTestDispatcher(t, reg, tr)

	u := d.Stores.Users.GetOrCreate(sender, "")
	u.Banned = true
	u.BannedReason = "spam"

	d.Handle(context.Background(), textEvent("M1", sender, "", ".ping"))

	if !tr.sentContaining("Estas baneado/a") || !tr.sentContaining("spam") {
		t.Fatalf("want ban reply with reason, got %v", tr.sent)
	}
	if u.Antispam != 1 {
		t.Errorf("antispam strikes = %d, want 1", u.Antispam)
	}
}

func TestBypassBanPlugin(t *testing.T) {
	ran := false
	p := &plugin.Plugin{
		Name:      "unban",
		Command:   plugin.Literal("unban"),
		BypassBan: true,
		Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
			ran = true
			return nil
		},
	}
	reg := newRegistry(t, p)
	d := newTestDispatcher(t, reg, &fakeTransport{})

	c := d.Stores.Chats.GetOrCreate(sender)
	c.IsBanned = true

	d.Handle(context.Background(), textEvent("M1", sender, "", ".unban"))

	if !ran {
		t.Fatal("BypassBan plugin must run in a banned chat")
	}
}

func TestAntispam2BlocksRootOwner(t *testing.T) {
	p := &plugin.Plugin{
		Name:    "ping",
		Command: plugin.Literal("ping"),
		Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
			t.Error("antispam2 root owner must be blocked")
			return nil
		},
	}
	reg := newRegistry(t, p)
	d := newTestDispatcher(t, reg, &fakeTransport{})
	d.Roles.Owners = []string{"555111"}

	u := d.Stores.Users.GetOrCreate(sender, "")
	u.Antispam2 = true

	d.Handle(context.Background(), textEvent("M1", sender, "", ".ping"))
}

func TestHandlerErrorMaskedReply(t *testing.T) {
	p := &plugin.Plugin{
		Name:    "leaky",
		Command: plugin.Literal("leak"),
		Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
			return errors.New("request failed with key supersecret123")
		},
	}
	reg := newRegistry(t, p)
	tr := &fakeTransport{}
	d := newTestDispatcher(t, reg, tr)
	d.Opts.APIKeys = map[string]string{"svc": "supersecret123"}

	d.Handle(context.Background(), textEvent("M1", sender, "", ".leak"))

	if !tr.sentContaining("***MASKED***") {
		t.Fatalf("want masked error reply, got %v", tr.sent)
	}
	if tr.sentContaining("supersecret123") {
		t.Fatal("secret leaked into reply")
	}
	st := d.Stores.Stats.Get("leaky")
	if st == nil || st.Total != 1 || st.Success != 0 {
		t.Fatalf("stats = %+v, want total 1 success 0", st)
	}
}

func TestAfterHookRunsOnError(t *testing.T) {
	afterRan := false
	p := &plugin.Plugin{
		Name:    "failing",
		Command: plugin.Literal("f"),
		Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
			return errors.New("boom")
		},
		After: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
			afterRan = true
			return nil
		},
	}
	reg := newRegistry(t, p)
	d := newTestDispatcher(t, reg, &fakeTransport{})

	d.Handle(context.Background(), textEvent("M1", sender, "", ".f"))

	if !afterRan {
		t.Fatal("after-hook must run even when the handler fails")
	}
}

func TestToxicEscalation(t *testing.T) {
	reg := newRegistry(t)
	tr := &fakeTransport{}
	d := newTestDispatcher(t, reg, tr)
	d.Toxic = staticToxic(true)

	c := d.Stores.Chats.GetOrCreate(groupChat)
	c.AntiToxic = true

	for i := 1; i <= 4; i++ {
		d.Handle(context.Background(), textEvent(fmt.Sprintf("M%d", i), groupChat, sender, "palabra fea"))
	}

	if !tr.sentContaining("Advertencia por tóxico 4/4") {
		t.Fatalf("want toxic warn replies, got %v", tr.sent)
	}
	if len(tr.removed) != 1 {
		t.Fatalf("fourth strike must remove, got %v", tr.removed)
	}
	u := d.Stores.Users.GetOrCreate(sender, "")
	if u.Warns != 0 {
		t.Errorf("toxic counter must reset, got %d", u.Warns)
	}
}

func TestCoinGate(t *testing.T) {
	p := &plugin.Plugin{
		Name:    "paid",
		Command: plugin.Literal("buy"),
		Coin:    50,
		Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
			return nil
		},
	}
	reg := newRegistry(t, p)
	tr := &fakeTransport{}
	d := newTestDispatcher(t, reg, tr)

	// Default user starts with 10 coins; the plugin costs 50.
	d.Handle(context.Background(), textEvent("M1", sender, "", ".buy"))
	if !tr.sentContaining("Se agotaron") {
		t.Fatalf("want coin-exhausted reply, got %v", tr.sent)
	}

	u := d.Stores.Users.GetOrCreate(sender, "")
	u.Coin = 100
	u.Spam = 0
	d.Handle(context.Background(), textEvent("M2", sender, "", ".buy"))
	if u.Coin != 50 {
		t.Errorf("coin balance = %d, want 50 after charge", u.Coin)
	}
	if !tr.sentContaining("Utilizaste 50") {
		t.Errorf("want charge notice, got %v", tr.sent)
	}
}

func TestMutedMessageDeleted(t *testing.T) {
	reg := newRegistry(t)
	tr := &fakeTransport{}
	d := newTestDispatcher(t, reg, tr)

	u := d.Stores.Users.GetOrCreate(sender, "")
	u.Muted = true

	d.Handle(context.Background(), textEvent("M1", groupChat, sender, "hola"))

	if len(tr.deleted) != 1 || tr.deleted[0].ID != "M1" {
		t.Fatalf("muted sender's message must be deleted, got %v", tr.deleted)
	}
}

func TestInternalMessageSkipped(t *testing.T) {
	p := &plugin.Plugin{
		Name:    "ping",
		Command: plugin.Literal("ping"),
		Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
			t.Error("internal messages must not dispatch")
			return nil
		},
	}
	reg := newRegistry(t, p)
	d := newTestDispatcher(t, reg, &fakeTransport{})

	d.Handle(context.Background(), textEvent("BAE5ABCDEF", sender, "", ".ping"))
}

func TestAdminTagSkippedWithoutRestrict(t *testing.T) {
	p := &plugin.Plugin{
		Name:    "kick",
		Tags:    []string{"admin"},
		Command: plugin.Literal("kick"),
		Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
			t.Error("admin plugin must be skipped when restrict is off")
			return nil
		},
	}
	reg := newRegistry(t, p)
	d := newTestDispatcher(t, reg, &fakeTransport{})
	d.Opts.Restrict = false

	d.Handle(context.Background(), textEvent("M1", sender, "", ".kick"))
}

func TestFleetDedupDrops(t *testing.T) {
	p := &plugin.Plugin{
		Name:    "ping",
		Command: plugin.Literal("ping"),
		Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
			t.Error("non-elected connection must drop the message")
			return nil
		},
	}
	reg := newRegistry(t, p)
	d := newTestDispatcher(t, reg, &fakeTransport{})
	d.Peers = func() []wa.Identity {
		return []wa.Identity{
			{JID: "888@s.whatsapp.net"},
			{JID: "999@s.whatsapp.net"},
		}
	}
	d.randInt = func(n int) int { return 0 } // elects 888, we are 999

	d.Handle(context.Background(), textEvent("M1", groupChat, sender, ".ping"))
}

func TestPanickingHandlerIsolated(t *testing.T) {
	p := &plugin.Plugin{
		Name:    "crash",
		Command: plugin.Literal("crash"),
		Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
			panic("kaboom")
		},
	}
	reg := newRegistry(t, p)
	d := newTestDispatcher(t, reg, &fakeTransport{})

	// Must not propagate.
	d.Handle(context.Background(), textEvent("M1", sender, "", ".crash"))
}

func TestQueueSerializesFIFO(t *testing.T) {
	q := NewQueue(5 * time.Millisecond)

	prev := q.Add("A")
	if prev != "" {
		t.Fatalf("first entry should have no predecessor, got %q", prev)
	}
	prev = q.Add("B")
	if prev != "A" {
		t.Fatalf("B must wait on A, got %q", prev)
	}

	released := make(chan struct{})
	go func() {
		q.Wait(context.Background(), "A")
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("Wait returned before predecessor eviction")
	case <-time.After(20 * time.Millisecond):
	}

	q.Remove("A")
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after eviction")
	}
}

func TestQueueWaitCancels(t *testing.T) {
	q := NewQueue(5 * time.Millisecond)
	q.Add("A")
	q.Add("B")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Wait(ctx, "A")
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait must honor context cancellation")
	}
}

func TestMaskSensitive(t *testing.T) {
	keys := map[string]string{"openai": "sk-aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}
	in := "key sk-aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa failed, password: hunter2, mail a@b.co"
	out := maskSensitive(in, keys)
	for _, leaked := range []string{"sk-aaaa", "hunter2", "a@b.co"} {
		if strings.Contains(out, leaked) {
			t.Errorf("output still contains %q: %s", leaked, out)
		}
	}
}
