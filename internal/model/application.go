package model

import "time"

type Application struct {
	ID          string     `json:"id"`
	Code        string     `json:"app_code"`
	Name        string     `json:"app_name"`
	Description string     `json:"app_description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

type ApplicationUpdate struct {
	Code        *string
	Name        *string
	Description *string
}

// ApplicationMember is one row of the flattened application -> role -> user
// projection. Role and user columns are empty for roles without members and
// applications without roles.
type ApplicationMember struct {
	RoleID   string
	RoleCode string
	RoleName string
	User     *User
}

type RoleWithUsers struct {
	ID    string `json:"id"`
	Code  string `json:"code"`
	Name  string `json:"name"`
	Users []User `json:"users"`
}

type ApplicationDetails struct {
	Application
	Roles []RoleWithUsers `json:"roles"`
}

// AssembleApplicationDetails folds flattened member rows into the nested view,
// keeping the first-seen order of roles.
func AssembleApplicationDetails(app Application, rows []ApplicationMember) ApplicationDetails {
	details := ApplicationDetails{Application: app, Roles: []RoleWithUsers{}}
	index := map[string]int{}

	for _, row := range rows {
		if row.RoleID == "" {
			continue
		}

		pos, seen := index[row.RoleID]
		if !seen {
			details.Roles = append(details.Roles, RoleWithUsers{
				ID:    row.RoleID,
				Code:  row.RoleCode,
				Name:  row.RoleName,
				Users: []User{},
			})
			pos = len(details.Roles) - 1
			index[row.RoleID] = pos
		}

		if row.User != nil {
			details.Roles[pos].Users = append(details.Roles[pos].Users, *row.User)
		}
	}

	return details
}
