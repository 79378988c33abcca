package models

import (
	"fmt"
	"slices"
)

type Role string

const (
	RoleStudent   Role = "student"
	RoleOrganizer Role = "organizer"
	RoleFaculty   Role = "faculty"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleOrganizer, RoleFaculty, RoleAdmin:
		return true
	}
	return false
}

// User is the caller identity handed to the engine. Roles is the set of
// capabilities the user holds; ActiveRole is the one they currently act as.
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Roles      []Role `json:"roles"`
	ActiveRole Role   `json:"active_role"`
}

func (u User) HasRole(r Role) bool {
	return slices.Contains(u.Roles, r)
}

// ActingAs reports whether the user currently acts with role r.
func (u User) ActingAs(r Role) bool {
	return u.ActiveRole == r && u.HasRole(r)
}

func (u User) IsAdmin() bool {
	return u.ActingAs(RoleAdmin)
}

// SwitchRole changes the active role; roles the user does not hold are rejected.
func (u *User) SwitchRole(r Role) error {
	if !r.Valid() {
		return fmt.Errorf("unknown role %q", r)
	}
	if !u.HasRole(r) {
		return fmt.Errorf("user %s does not hold role %q", u.ID, r)
	}
	u.ActiveRole = r
	return nil
}

func (u User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name}
}
