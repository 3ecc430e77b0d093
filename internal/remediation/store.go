package remediation

import (
	"context"
	"errors"

	"github.com/xaenox/relay-bot/internal/models"
)

var (
	ErrNotFound = errors.New("remediation session not found")
	ErrNotOwner = errors.New("remediation session belongs to another user")
)

// Store keeps pending paraphrase offers keyed by an unguessable token.
type Store interface {
	Create(ctx context.Context, userID int64, original, proposed string, reason models.RemediationReason) (string, error)
	// Resolve returns ErrNotFound for unknown or expired tokens and
	// ErrNotOwner when userID does not own the session.
	Resolve(ctx context.Context, token string, userID int64) (*models.RemediationSession, error)
	// Consume removes the session. It reports whether this call removed it.
	Consume(ctx context.Context, token string) (bool, error)
}
