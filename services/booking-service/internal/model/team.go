package model

import "time"

type TeamRole string

const (
	TeamRoleOwner  TeamRole = "OWNER"
	TeamRoleMember TeamRole = "MEMBER"
)

type Team struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
}

type TeamMember struct {
	TeamID   string
	UserID   string
	Role     TeamRole
	Accepted bool
	JoinedAt time.Time
}
