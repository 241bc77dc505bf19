package domain

import "go.mongodb.org/mongo-driver/bson/primitive"

// Role type to distinguish between user roles. Codes match the ones issued by the user service.
type Role int

// Define constants for roles
const (
	RoleAdmin   Role = 1
	RoleTrainer Role = 2
	RoleAthlete Role = 3
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleTrainer:
		return "trainer"
	case RoleAthlete:
		return "athlete"
	default:
		return "unknown"
	}
}

// Caller is the verified identity behind a request.
type Caller struct {
	UserID primitive.ObjectID
	Role   Role
	// Authorization is the raw header value, forwarded unmodified to downstream services.
	Authorization string
}

// Owns reports whether the caller may read or modify g.
func (c Caller) Owns(g *Goal) bool {
	return c.Role == RoleAdmin || g.UserID == c.UserID
}
