package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeLoginSucceeded     Type = "auth.login"
	TypeLoginFailed        Type = "auth.login_failed"
	TypeTokenRefreshed     Type = "auth.refresh"
	TypeRefreshRejected    Type = "auth.refresh_rejected"
	TypeLogout             Type = "auth.logout"
	TypePasswordResetSent  Type = "auth.password_reset_requested"
	TypePasswordReset      Type = "auth.password_reset"
	TypeVerificationSent   Type = "auth.verification_requested"
	TypeEmailVerified      Type = "auth.email_verified"
	TypeTenantCreated      Type = "tenant.created"
	TypeTenantDeleted      Type = "tenant.deleted"
	TypeRoleAssigned       Type = "rbac.role_assigned"
	TypeRoleRevoked        Type = "rbac.role_revoked"
	TypeRefreshTokensSwept Type = "auth.tokens_swept"
)

type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Tenant    string    `json:"tenant,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"` // Who triggered the event
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New stamps an event with a fresh id and the current time.
func New(typ Type, tenant, actorID string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Tenant:    tenant,
		ActorID:   actorID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
