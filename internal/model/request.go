package model

import "encoding/json"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type CreateTenantRequest struct {
	Name string `json:"name"`
}

type CreateUserRequest struct {
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	FullName string     `json:"full_name"`
	Status   UserStatus `json:"status"`
}

type UpdateUserRequest struct {
	Username      *string     `json:"username"`
	Email         *string     `json:"email"`
	FullName      *string     `json:"full_name"`
	Status        *UserStatus `json:"status"`
	EmailVerified *bool       `json:"email_verified"`
	Password      *string     `json:"password"`
}

type CreateApplicationRequest struct {
	Code        string `json:"app_code"`
	Name        string `json:"app_name"`
	Description string `json:"app_description"`
}

type UpdateApplicationRequest struct {
	Code        *string `json:"app_code"`
	Name        *string `json:"app_name"`
	Description *string `json:"app_description"`
}

type CreateRoleRequest struct {
	ApplicationID string          `json:"app_id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Level         int             `json:"level"`
	Permissions   json.RawMessage `json:"permissions"`
}

type UpdateRoleRequest struct {
	Code        *string         `json:"code"`
	Name        *string         `json:"name"`
	Level       *int            `json:"level"`
	Permissions json.RawMessage `json:"permissions"`
}

// AssignRoleRequest accepts a single role_id, a list in role_ids, or both.
type AssignRoleRequest struct {
	RoleID  string   `json:"role_id"`
	RoleIDs []string `json:"role_ids"`
}

func (r AssignRoleRequest) IDs() []string {
	ids := make([]string, 0, len(r.RoleIDs)+1)
	if r.RoleID != "" {
		ids = append(ids, r.RoleID)
	}
	for _, id := range r.RoleIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

type Tenant struct {
	Name string `json:"name"`
}
