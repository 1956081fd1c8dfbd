package model

import "time"

// Role codes with meaning to the authorization engine.
const RoleCodeSuperAdmin = "SUPER_ADMIN"

type Role struct {
	ID            string             `json:"id"`
	ApplicationID string             `json:"app_id"`
	Code          string             `json:"code"`
	Name          string             `json:"name"`
	Level         int                `json:"level"`
	Permissions   PermissionDocument `json:"permissions"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     *time.Time         `json:"updated_at,omitempty"`
}

type RoleUpdate struct {
	Code        *string
	Name        *string
	Level       *int
	Permissions *PermissionDocument
}

type RoleFilter struct {
	ApplicationID string
	Skip          int
	Limit         int
}

type UserRole struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// UserRoleDetail is a role assignment joined with its role and application.
type UserRoleDetail struct {
	AssignmentID string             `json:"assignment_id"`
	RoleID       string             `json:"role_id"`
	RoleCode     string             `json:"role_code"`
	RoleName     string             `json:"role_name"`
	RoleLevel    int                `json:"role_level"`
	Permissions  PermissionDocument `json:"-"`
	AppID        string             `json:"app_id"`
	AppCode      string             `json:"app_code"`
	AppName      string             `json:"app_name"`
	CreatedAt    time.Time          `json:"created_at"`
}
