package models

import "time"

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

func (r UserRole) Valid() bool {
	return r == UserRoleUser || r == UserRoleAdmin
}

// User is the public profile of an account. Credential material lives in
// Credentials and is only read by the session lifecycle code.
type User struct {
	ID        string
	Name      string
	Email     string
	Role      UserRole
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Credentials struct {
	User             User
	PasswordHash     []byte
	RefreshTokenHash []byte
}

type UserFilter struct {
	Role   UserRole
	Search string
	Limit  int
	Offset int
}

type UserCounts struct {
	Total  int
	Active int
	Admins int
}
