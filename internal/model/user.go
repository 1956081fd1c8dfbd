package model

import "time"

type UserStatus string

const (
	UserStatusActive              UserStatus = "active"
	UserStatusInactive            UserStatus = "inactive"
	UserStatusPendingVerification UserStatus = "pending_verification"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusPendingVerification:
		return true
	}
	return false
}

type User struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	FullName      string     `json:"full_name,omitempty"`
	Status        UserStatus `json:"status"`
	EmailVerified bool       `json:"email_verified"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// UserUpdate carries a partial update; nil fields are left untouched.
type UserUpdate struct {
	Username      *string
	Email         *string
	FullName      *string
	Status        *UserStatus
	EmailVerified *bool
	PasswordHash  *string
}

// UserInfo is the authenticated user's own view, including role assignments.
type UserInfo struct {
	ID            string           `json:"id"`
	Username      string           `json:"username"`
	Email         string           `json:"email"`
	FullName      string           `json:"full_name,omitempty"`
	Status        UserStatus       `json:"status"`
	EmailVerified bool             `json:"email_verified"`
	Roles         []UserRoleDetail `json:"roles"`
}

// ClientContext identifies the client a session was opened from.
type ClientContext struct {
	UserAgent string
	IPAddress string
}

func (c *ClientContext) Empty() bool {
	return c == nil || (c.UserAgent == "" && c.IPAddress == "")
}
