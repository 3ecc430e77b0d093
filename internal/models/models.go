package models

import "time"

// Role identifies the author of a stored dialog turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Profile represents a bot user with their moderation counters
type Profile struct {
	UserID          int64     `json:"user_id"`
	Username        string    `json:"username"`
	FirstName       string    `json:"first_name"`
	RegisteredAt    time.Time `json:"registered_at"`
	LastResetAt     time.Time `json:"last_reset_at"`
	TotalRequests   int64     `json:"total_requests"`
	ViolationsCount int64     `json:"violations_count"`
	IsMuted         bool      `json:"is_muted"`
}

// MessageRecord is a single entry of a user's dialog log
type MessageRecord struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ModerationSource tells which check blocked a message
type ModerationSource string

const (
	SourceLocal  ModerationSource = "local"
	SourceRemote ModerationSource = "remote"
	SourceNone   ModerationSource = "none"
)

// ModerationOutcome is the transient result of a content check
type ModerationOutcome struct {
	Blocked    bool               `json:"blocked"`
	Source     ModerationSource   `json:"source"`
	Categories map[string]float64 `json:"categories"`
	Term       string             `json:"term,omitempty"`
}

// RemediationReason is why a rewrite was offered
type RemediationReason string

const (
	ReasonProfanity  RemediationReason = "profanity"
	ReasonModeration RemediationReason = "moderation"
)

// RemediationSession is a pending offer to send a rewritten message
type RemediationSession struct {
	Token     string            `json:"token"`
	UserID    int64             `json:"user_id"`
	Original  string            `json:"original"`
	Proposed  string            `json:"proposed"`
	Reason    RemediationReason `json:"reason"`
	CreatedAt time.Time         `json:"created_at"`
}
