package models

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an account created through registration or social login. Social
// accounts may have an empty Password.
type User struct {
	BaseModel

	Username      string  `gorm:"size:128;index" json:"username"`
	Email         string  `gorm:"size:320;uniqueIndex;not null" json:"email"`
	Password      string  `json:"-"`
	GoogleID      *string `gorm:"size:64;uniqueIndex" json:"-"`
	GitHubID      *string `gorm:"column:github_id;size:64;uniqueIndex" json:"-"`
	EmailVerified bool    `gorm:"default:false" json:"email_verified"`
	Role          string  `gorm:"size:16;not null;default:user" json:"role"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
