package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/xaenox/relay-bot/internal/models"
)

const (
	DefaultThreshold  = 3
	DefaultUnlockWord = "пожалуйста"
)

type State string

const (
	StateActive State = "active"
	StateMuted  State = "muted"
)

// Store is the subset of storage the policy mutates.
type Store interface {
	IncrementViolations(ctx context.Context, userID int64, delta int64) (int64, error)
	SetMuted(ctx context.Context, userID int64, muted bool) error
}

// Verdict is the result of recording one blocked message.
type Verdict struct {
	Count int64
	Muted bool
}

type Policy struct {
	store      Store
	threshold  int64
	unlockWord string
}

func New(store Store, threshold int, unlockWord string) *Policy {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	unlockWord = strings.ToLower(strings.TrimSpace(unlockWord))
	if unlockWord == "" {
		unlockWord = DefaultUnlockWord
	}
	return &Policy{store: store, threshold: int64(threshold), unlockWord: unlockWord}
}

func (p *Policy) UnlockWord() string { return p.unlockWord }

func (p *Policy) Threshold() int64 { return p.threshold }

// IsUnlock reports whether text, trimmed and lowercased, is exactly the unlock word.
func (p *Policy) IsUnlock(text string) bool {
	return strings.ToLower(strings.TrimSpace(text)) == p.unlockWord
}

// RecordViolation counts one blocked message and mutes the user once the
// counter reaches the threshold.
func (p *Policy) RecordViolation(ctx context.Context, userID int64) (Verdict, error) {
	count, err := p.store.IncrementViolations(ctx, userID, 1)
	if err != nil {
		return Verdict{}, fmt.Errorf("record violation: %w", err)
	}
	v := Verdict{Count: count}
	if count >= p.threshold {
		if err := p.store.SetMuted(ctx, userID, true); err != nil {
			return Verdict{}, fmt.Errorf("mute user: %w", err)
		}
		v.Muted = true
	}
	return v, nil
}

// Unmute lifts the mute. The violation counter is left as is.
func (p *Policy) Unmute(ctx context.Context, userID int64) error {
	if err := p.store.SetMuted(ctx, userID, false); err != nil {
		return fmt.Errorf("unmute user: %w", err)
	}
	return nil
}

func StateOf(profile *models.Profile) State {
	if profile != nil && profile.IsMuted {
		return StateMuted
	}
	return StateActive
}
