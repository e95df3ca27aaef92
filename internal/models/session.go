package models

import "time"

// Session is a browser session established by social login. Only the SHA-256
// of the cookie value is stored.
type Session struct {
	BaseModel

	UserID     string     `gorm:"size:36;not null;index" json:"user_id"`
	User       *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	TokenHash  string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	Provider   string     `gorm:"size:32" json:"provider"`
	IPAddress  string     `gorm:"size:64" json:"ip_address"`
	UserAgent  string     `json:"user_agent"`
	ExpiresAt  time.Time  `gorm:"index" json:"expires_at"`
	LastUsedAt time.Time  `json:"last_used_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the session can authenticate a request at now.
func (s *Session) Active(now time.Time) bool {
	return s != nil && s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
