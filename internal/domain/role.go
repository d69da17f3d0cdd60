package domain

// Token roles. Only operators with RoleAdmin may inspect socket state
// through the user-facing API.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)
