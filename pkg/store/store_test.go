package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	return st
}

func TestChatPolicy_LazyDefaults(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	p, err := st.ChatPolicy(ctx, 42)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if !p.CaptchaEnabled || !p.FilterEnabled || !p.FloodEnabled || !p.RaidEnabled || !p.WelcomeEnabled {
		t.Fatal("all feature toggles default to enabled")
	}
	if p.NightModeEnabled {
		t.Fatal("night mode defaults to disabled")
	}
	if p.FloodMessages != 5 || p.FloodSeconds != 10 || p.MuteMinutes != 60 {
		t.Fatalf("flood defaults = %d/%ds mute %dm, want 5/10s mute 60m",
			p.FloodMessages, p.FloodSeconds, p.MuteMinutes)
	}
	if p.JoinsPerMinute != 10 {
		t.Fatalf("joins per minute = %d, want 10", p.JoinsPerMinute)
	}
	if p.NightStart != "23:00" || p.NightEnd != "07:00" {
		t.Fatalf("night window = %s-%s, want 23:00-07:00", p.NightStart, p.NightEnd)
	}
	if !p.VoiceAllowed {
		t.Fatal("voice defaults to allowed")
	}

	// The second read returns the persisted record, not a fresh default.
	p.FloodMessages = 3
	if err := st.UpdateChatPolicy(ctx, p); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, err := st.ChatPolicy(ctx, 42)
	if err != nil {
		t.Fatalf("re-read: %v", err)
	}
	if again.FloodMessages != 3 {
		t.Fatalf("persisted flood limit = %d, want 3", again.FloodMessages)
	}
}

func TestChatPolicy_BotAdminsAndStopWordsRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	p, _ := st.ChatPolicy(ctx, 1)
	p.StopWords = []string{"casino", "crypto"}
	p.BotAdmins = []int64{7, 8}
	if err := st.UpdateChatPolicy(ctx, p); err != nil {
		t.Fatalf("update: %v", err)
	}

	again, err := st.ChatPolicy(ctx, 1)
	if err != nil {
		t.Fatalf("re-read: %v", err)
	}
	if len(again.StopWords) != 2 || again.StopWords[0] != "casino" {
		t.Fatalf("stop words = %v", again.StopWords)
	}
	if !again.IsBotAdmin(7) || again.IsBotAdmin(9) {
		t.Fatalf("bot admins = %v", again.BotAdmins)
	}
}

func TestBumps_CreatePolicyAndIncrement(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	// Bumping an unseen chat lazily creates its policy first.
	if err := st.BumpDeleted(ctx, 5); err != nil {
		t.Fatalf("bump deleted: %v", err)
	}
	if err := st.BumpDeleted(ctx, 5); err != nil {
		t.Fatalf("bump deleted: %v", err)
	}
	if err := st.BumpBanned(ctx, 5); err != nil {
		t.Fatalf("bump banned: %v", err)
	}
	if err := st.BumpMuted(ctx, 5); err != nil {
		t.Fatalf("bump muted: %v", err)
	}
	if err := st.BumpChallengePassed(ctx, 5); err != nil {
		t.Fatalf("bump passed: %v", err)
	}

	p, err := st.ChatPolicy(ctx, 5)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if p.MessagesDeleted != 2 || p.UsersBanned != 1 || p.UsersMuted != 1 || p.ChallengesPassed != 1 {
		t.Fatalf("counters = %d/%d/%d/%d, want 2/1/1/1",
			p.MessagesDeleted, p.UsersBanned, p.UsersMuted, p.ChallengesPassed)
	}
}

func TestPutChallenge_ReportsSupersede(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	superseded, err := st.PutChallenge(ctx, &Challenge{
		ChatID: 1, UserID: 2, Token: "t1", Answer: "7", IssuedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if superseded {
		t.Fatal("first challenge cannot supersede anything")
	}

	superseded, err = st.PutChallenge(ctx, &Challenge{
		ChatID: 1, UserID: 2, Token: "t2", Answer: "9", IssuedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("put second: %v", err)
	}
	if !superseded {
		t.Fatal("second challenge for the same identity must supersede")
	}

	c, err := st.GetChallenge(ctx, 1, 2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.Token != "t2" || c.Attempts != 0 {
		t.Fatalf("live challenge token=%q attempts=%d, want t2 with fresh attempts", c.Token, c.Attempts)
	}
}

func TestMutateChallenge_RemoveAndSave(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	if _, _, err := st.MutateChallenge(ctx, 1, 2, func(*Challenge) bool { return false }); err != ErrNotFound {
		t.Fatalf("mutate on missing challenge: err = %v, want ErrNotFound", err)
	}

	if _, err := st.PutChallenge(ctx, &Challenge{ChatID: 1, UserID: 2, Token: "t", Answer: "7"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	c, removed, err := st.MutateChallenge(ctx, 1, 2, func(c *Challenge) bool {
		c.Attempts++
		return false
	})
	if err != nil || removed {
		t.Fatalf("save path: removed=%v err=%v", removed, err)
	}
	if c.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", c.Attempts)
	}

	_, removed, err = st.MutateChallenge(ctx, 1, 2, func(*Challenge) bool { return true })
	if err != nil || !removed {
		t.Fatalf("remove path: removed=%v err=%v", removed, err)
	}
	if _, err := st.GetChallenge(ctx, 1, 2); err != ErrNotFound {
		t.Fatalf("after removal: err = %v, want ErrNotFound", err)
	}
}

func TestAddVerified_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := st.AddVerified(ctx, 1, 2, at); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := st.AddVerified(ctx, 1, 2, at.Add(time.Hour)); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	verified, err := st.IsVerified(ctx, 1, 2)
	if err != nil || !verified {
		t.Fatalf("verified=%v err=%v", verified, err)
	}
	verified, _ = st.IsVerified(ctx, 1, 3)
	if verified {
		t.Fatal("unrelated identity must not be verified")
	}
}

func TestScheduled_TransitionsAreOneWay(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	item, err := st.CreateScheduledItem(ctx, &ScheduledItem{
		AuthorID: 9, Kind: KindText, Text: "hello",
		At: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		// Authored status is ignored; items always start pending.
		Status: StatusSent,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if item.Status != StatusPending {
		t.Fatalf("created status = %q, want pending", item.Status)
	}

	if err := st.MarkScheduledStatus(ctx, item.ID, StatusSent); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := st.MarkScheduledStatus(ctx, item.ID, StatusError); err != ErrNotFound {
		t.Fatalf("re-mark terminal item: err = %v, want ErrNotFound", err)
	}
	if err := st.MarkScheduledStatus(ctx, item.ID, StatusPending); err == nil {
		t.Fatal("pending is not a terminal status")
	}
}

func TestScheduled_OwnerChecksAndDuePending(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	due := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	item, err := st.CreateScheduledItem(ctx, &ScheduledItem{
		AuthorID: 9, Kind: KindText, Text: "hi", At: due,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Unbound items are never due, regardless of time.
	items, err := st.DuePending(ctx, due.Add(time.Hour))
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("unbound item reported due: %v", items)
	}

	// Only the author may bind.
	if err := st.BindScheduledChat(ctx, item.ID, 999, -100); err != ErrNotFound {
		t.Fatalf("foreign bind: err = %v, want ErrNotFound", err)
	}
	if err := st.BindScheduledChat(ctx, item.ID, 9, -100); err != nil {
		t.Fatalf("bind: %v", err)
	}

	items, err = st.DuePending(ctx, due)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(items) != 1 || *items[0].ChatID != -100 {
		t.Fatalf("due items = %v", items)
	}

	// Not yet due.
	items, _ = st.DuePending(ctx, due.Add(-time.Minute))
	if len(items) != 0 {
		t.Fatalf("future item reported due: %v", items)
	}
}

func TestScheduled_CancelAndList(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	first, _ := st.CreateScheduledItem(ctx, &ScheduledItem{AuthorID: 9, Kind: KindText, Text: "a", At: at})
	second, _ := st.CreateScheduledItem(ctx, &ScheduledItem{AuthorID: 9, Kind: KindText, Text: "b", At: at})
	st.CreateScheduledItem(ctx, &ScheduledItem{AuthorID: 10, Kind: KindText, Text: "c", At: at})

	if err := st.CancelScheduledItem(ctx, first.ID, 999); err != ErrNotFound {
		t.Fatalf("foreign cancel: err = %v, want ErrNotFound", err)
	}
	if err := st.CancelScheduledItem(ctx, first.ID, 9); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := st.CancelScheduledItem(ctx, first.ID, 9); err != ErrNotFound {
		t.Fatalf("double cancel: err = %v, want ErrNotFound", err)
	}

	items, err := st.ListScheduledByAuthor(ctx, 9)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].ID != second.ID {
		t.Fatalf("pending items for author 9 = %v, want only the second", items)
	}
}
