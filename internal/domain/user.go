package domain

import (
	"strings"
	"time"
)

// User represents a platform account.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	FirstName    string
	LastName     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EmailLocalPart returns the portion of the email before "@".
func (u User) EmailLocalPart() string {
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}
