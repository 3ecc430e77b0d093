package policy

import (
	"context"
	"testing"

	"github.com/xaenox/relay-bot/internal/models"
	"github.com/xaenox/relay-bot/internal/storage"
)

func newPolicy(t *testing.T) (*Policy, *storage.MemoryStorage, int64) {
	t.Helper()
	store := storage.NewMemoryStorage()
	uid := int64(42)
	if _, err := store.GetOrCreateProfile(context.Background(), uid, "u", "U"); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return New(store, 0, ""), store, uid
}

func TestDefaults(t *testing.T) {
	p := New(nil, 0, "  ")
	if p.Threshold() != DefaultThreshold || p.UnlockWord() != DefaultUnlockWord {
		t.Fatalf("defaults not applied: %d %q", p.Threshold(), p.UnlockWord())
	}
}

func TestIsUnlock(t *testing.T) {
	p := New(nil, 3, "Пожалуйста")
	tests := map[string]bool{
		"пожалуйста":          true,
		"  ПОЖАЛУЙСТА \n":     true,
		"Пожалуйста!":         false,
		"ну пожалуйста":       false,
		"":                    false,
		"пожалуйста пожалуйста": false,
	}
	for in, want := range tests {
		if got := p.IsUnlock(in); got != want {
			t.Errorf("IsUnlock(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRecordViolation_MutesAtThreshold(t *testing.T) {
	p, store, uid := newPolicy(t)
	ctx := context.Background()

	for i := int64(1); i <= 2; i++ {
		v, err := p.RecordViolation(ctx, uid)
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if v.Count != i || v.Muted {
			t.Fatalf("violation %d: %+v", i, v)
		}
	}
	v, err := p.RecordViolation(ctx, uid)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if v.Count != 3 || !v.Muted {
		t.Fatalf("third violation must mute: %+v", v)
	}

	prof, _ := store.GetProfile(ctx, uid)
	if StateOf(prof) != StateMuted {
		t.Fatalf("profile not muted: %+v", prof)
	}
}

func TestUnmute_KeepsCounter(t *testing.T) {
	p, store, uid := newPolicy(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		p.RecordViolation(ctx, uid)
	}
	if err := p.Unmute(ctx, uid); err != nil {
		t.Fatalf("unmute: %v", err)
	}
	prof, _ := store.GetProfile(ctx, uid)
	if StateOf(prof) != StateActive || prof.ViolationsCount != 3 {
		t.Fatalf("unexpected profile after unmute: %+v", prof)
	}

	// the next single violation mutes again
	v, _ := p.RecordViolation(ctx, uid)
	if !v.Muted || v.Count != 4 {
		t.Fatalf("expected re-mute, got %+v", v)
	}
}

func TestRecordViolation_UnknownUser(t *testing.T) {
	p := New(storage.NewMemoryStorage(), 3, "")
	if _, err := p.RecordViolation(context.Background(), 7); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestStateOf(t *testing.T) {
	if StateOf(nil) != StateActive {
		t.Fatal("nil profile is active")
	}
	if StateOf(&models.Profile{IsMuted: true}) != StateMuted {
		t.Fatal("muted profile")
	}
}
