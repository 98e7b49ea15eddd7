package model

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"
)

// ChatHistoryStore keeps the assistant exchange of an intake session.
type ChatHistoryStore interface {
	Append(ctx context.Context, sessionID string, messages ...*schema.Message) error
	// Recent returns at most limit of the newest messages, oldest first.
	Recent(ctx context.Context, sessionID string, limit int) ([]*schema.Message, error)
}

// SessionStore keeps the state of in-flight intake conversations.
type SessionStore interface {
	Save(ctx context.Context, state ConversationState) error
	// Load returns a not_found error for unknown or expired sessions.
	Load(ctx context.Context, id string) (ConversationState, error)
}

// CodeStore persists one-time codes.
type CodeStore interface {
	IssueCode(ctx context.Context, code OneTimeCode) error
	// FindCode returns nil without error when no record matches.
	FindCode(ctx context.Context, phone, code string) (*OneTimeCode, error)
	// DeleteCode removes the record only if it is still the stored one and
	// reports whether this call removed it.
	DeleteCode(ctx context.Context, code OneTimeCode) (bool, error)
}

// WatchStore persists finalized watch requests. CreateWatch must be
// idempotent on the watch id.
type WatchStore interface {
	CreateWatch(ctx context.Context, watch *WatchRequest) error
}

// VerifiedMarker is the proof left by a successful standalone verification.
// Token is unique per verification and becomes the id of the watch created
// with it.
type VerifiedMarker struct {
	Token string
	TTL   time.Duration
}

// VerifiedPhoneStore remembers phones that passed verification outside of a
// dialogue session, so a later intake submission can rely on it.
type VerifiedPhoneStore interface {
	MarkVerified(ctx context.Context, phone string, ttl time.Duration) error
	// ClaimVerified atomically removes the marker and returns it; ok is false
	// when there was none. Only one caller can claim a given marker.
	ClaimVerified(ctx context.Context, phone string) (marker VerifiedMarker, ok bool, err error)
	// RestoreVerified puts a claimed marker back unless a newer one exists.
	RestoreVerified(ctx context.Context, phone string, marker VerifiedMarker) error
}
