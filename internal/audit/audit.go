package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is one auditable authorization outcome.
type Event struct {
	ID          uuid.UUID
	PrincipalID string // empty for anonymous requests
	Role        string
	Action      string // e.g. "access.denied"
	Method      string
	Path        string
	Pattern     string // matched route pattern, if any
	RequestID   string
	Metadata    map[string]any
	Source      string // "gateway", "api"
	CreatedAt   time.Time
}

const (
	ActionAccessDenied       = "access.denied"
	ActionSignInRequired     = "access.signin_required"
	ActionPermissionDenied   = "permission.denied"
	ActionUnknownRole        = "principal.unknown_role"
	ActionVerificationFailed = "principal.verification_failed"
	ActionFailClosed         = "gateway.fail_closed"
)

const (
	SourceGateway = "gateway"
	SourceAPI     = "api"
)

const (
	MetadataPermission = "permission"
	MetadataReason     = "reason"
	MetadataClass      = "class"
	MetadataVerdict    = "verdict"
)

// Logger is the audit logging interface. Log is fire-and-forget.
type Logger interface {
	Log(ctx context.Context, event Event)
	Close() error
}

// NopLogger is a no-op audit logger for testing and when audit is disabled.
type NopLogger struct{}

func (NopLogger) Log(context.Context, Event) {}
func (NopLogger) Close() error               { return nil }
