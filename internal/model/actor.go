package model

// Role is supplied by the identity service with every request.
type Role string

const (
	RoleMember  Role = "member"
	RoleOfficer Role = "officer"
	RoleAdmin   Role = "admin"
)

// Actor is the authenticated caller of an admission operation.
type Actor struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// SystemActor is recorded on audit entries written by webhook handling and
// automatic promotion.
var SystemActor = Actor{UserID: "system", Role: RoleAdmin}

// IsPrivileged reports whether the actor may use admin overrides.
func (a Actor) IsPrivileged() bool {
	return a.Role == RoleOfficer || a.Role == RoleAdmin
}
