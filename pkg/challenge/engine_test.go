package challenge

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chatwarden/chatwarden/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	return st
}

func TestSubmit_CorrectAfterWrongAttempts(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	eng := NewEngine(st, WithTimeout(time.Hour))
	defer eng.Stop()

	issued, err := eng.Issue(ctx, 100, 200)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Two wrong answers, then the correct one.
	for k := 1; k <= 2; k++ {
		res, err := eng.Submit(ctx, 100, 200, issued.Token, "not-the-answer")
		if err != nil {
			t.Fatalf("submit wrong #%d: %v", k, err)
		}
		if res.Outcome != OutcomeIncorrectRetry {
			t.Fatalf("wrong #%d: outcome = %v, want IncorrectRetry", k, res.Outcome)
		}
		if res.Remaining != MaxAttempts-k {
			t.Fatalf("wrong #%d: remaining = %d, want %d", k, res.Remaining, MaxAttempts-k)
		}
	}

	res, err := eng.Submit(ctx, 100, 200, issued.Token, issued.Answer)
	if err != nil {
		t.Fatalf("submit correct: %v", err)
	}
	if res.Outcome != OutcomeCorrect {
		t.Fatalf("outcome = %v, want Correct", res.Outcome)
	}

	if _, err := st.GetChallenge(ctx, 100, 200); err != store.ErrNotFound {
		t.Fatalf("challenge should be deleted after pass, got err=%v", err)
	}
	verified, err := st.IsVerified(ctx, 100, 200)
	if err != nil || !verified {
		t.Fatalf("identity should be verified (verified=%v, err=%v)", verified, err)
	}
}

func TestSubmit_ExhaustedOnThirdWrong(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	eng := NewEngine(st, WithTimeout(time.Hour))
	defer eng.Stop()

	issued, err := eng.Issue(ctx, 100, 200)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var res SubmitResult
	for k := 1; k <= 3; k++ {
		res, err = eng.Submit(ctx, 100, 200, issued.Token, "wrong")
		if err != nil {
			t.Fatalf("submit #%d: %v", k, err)
		}
	}
	if res.Outcome != OutcomeExhausted {
		t.Fatalf("third wrong answer: outcome = %v, want Exhausted", res.Outcome)
	}

	// A fourth submission finds no live challenge.
	res, err = eng.Submit(ctx, 100, 200, issued.Token, "wrong")
	if err != nil {
		t.Fatalf("submit after exhaustion: %v", err)
	}
	if res.Outcome != OutcomeNotFound {
		t.Fatalf("fourth submission: outcome = %v, want NotFound", res.Outcome)
	}
	verified, _ := st.IsVerified(ctx, 100, 200)
	if verified {
		t.Fatal("identity must not be verified after exhaustion")
	}
}

func TestSubmit_StaleTokenRejected(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	eng := NewEngine(st, WithTimeout(time.Hour))
	defer eng.Stop()

	first, err := eng.Issue(ctx, 100, 200)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	second, err := eng.Issue(ctx, 100, 200)
	if err != nil {
		t.Fatalf("re-issue: %v", err)
	}
	if !second.Superseded {
		t.Fatal("re-issue should report superseding the outstanding challenge")
	}

	// Answering via the first keyboard must miss.
	res, err := eng.Submit(ctx, 100, 200, first.Token, second.Answer)
	if err != nil {
		t.Fatalf("submit stale: %v", err)
	}
	if res.Outcome != OutcomeNotFound {
		t.Fatalf("stale token: outcome = %v, want NotFound", res.Outcome)
	}

	// The live one still works.
	res, err = eng.Submit(ctx, 100, 200, second.Token, second.Answer)
	if err != nil || res.Outcome != OutcomeCorrect {
		t.Fatalf("live token: outcome = %v, err = %v, want Correct", res.Outcome, err)
	}
}

func TestIssue_SingleLiveChallengePerIdentity(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	eng := NewEngine(st, WithTimeout(time.Hour))
	defer eng.Stop()

	if _, err := eng.Issue(ctx, 100, 200); err != nil {
		t.Fatalf("issue: %v", err)
	}
	second, err := eng.Issue(ctx, 100, 200)
	if err != nil {
		t.Fatalf("re-issue: %v", err)
	}

	c, err := st.GetChallenge(ctx, 100, 200)
	if err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if c.Token != second.Token {
		t.Fatal("live challenge should be the most recently issued one")
	}
	if c.Attempts != 0 {
		t.Fatalf("re-issue should reset attempts, got %d", c.Attempts)
	}
}

func TestExpire_KicksOnlyWhileLive(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	eng := NewEngine(st, WithTimeout(time.Hour))
	defer eng.Stop()

	expired := make(chan int64, 1)
	eng.SetExpireHandler(func(chatID, userID int64, messageID int) {
		expired <- userID
	})

	issued, err := eng.Issue(ctx, 100, 200)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	eng.Expire(100, 200, issued.Token)
	select {
	case uid := <-expired:
		if uid != 200 {
			t.Fatalf("expired user = %d, want 200", uid)
		}
	default:
		t.Fatal("expire handler should have fired for a live challenge")
	}

	// A second expiry for the same token is a no-op.
	eng.Expire(100, 200, issued.Token)
	select {
	case <-expired:
		t.Fatal("expire handler must not fire for an already resolved challenge")
	default:
	}
}

func TestExpire_StaleTimerSparesSupersedingChallenge(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	eng := NewEngine(st, WithTimeout(time.Hour))
	defer eng.Stop()

	expired := make(chan string, 1)
	eng.SetExpireHandler(func(int64, int64, int) { expired <- "kicked" })

	first, err := eng.Issue(ctx, 100, 200)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	second, err := eng.Issue(ctx, 100, 200)
	if err != nil {
		t.Fatalf("re-issue: %v", err)
	}

	// The superseded challenge's timer fires late: it must not kick the
	// user or touch the live challenge.
	eng.Expire(100, 200, first.Token)
	select {
	case <-expired:
		t.Fatal("stale timeout must not kick a user with a live superseding challenge")
	default:
	}
	c, err := st.GetChallenge(ctx, 100, 200)
	if err != nil {
		t.Fatalf("superseding challenge gone: %v", err)
	}
	if c.Token != second.Token {
		t.Fatalf("live token = %q, want %q", c.Token, second.Token)
	}

	// The live challenge's own timeout still works.
	eng.Expire(100, 200, second.Token)
	select {
	case <-expired:
	default:
		t.Fatal("live challenge timeout should have fired")
	}
	if _, err := st.GetChallenge(ctx, 100, 200); err != store.ErrNotFound {
		t.Fatalf("after timeout: err = %v, want ErrNotFound", err)
	}
}

func TestExpire_NoOpAfterCorrectAnswer(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	eng := NewEngine(st, WithTimeout(time.Hour))
	defer eng.Stop()

	fired := false
	eng.SetExpireHandler(func(int64, int64, int) { fired = true })

	issued, err := eng.Issue(ctx, 100, 200)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := eng.Submit(ctx, 100, 200, issued.Token, issued.Answer); err != nil {
		t.Fatalf("submit: %v", err)
	}

	eng.Expire(100, 200, issued.Token)
	if fired {
		t.Fatal("timeout after resolution must no-op")
	}
}
