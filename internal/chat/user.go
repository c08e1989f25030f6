package chat

import (
	"time"

	"github.com/google/uuid"
)

// Identity is what the authentication layer hands to the broker for a
// connection. The broker trusts it as is.
type Identity struct {
	UserID      string
	DisplayName string
}

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	LastSeen     time.Time `json:"lastSeen"`
}

// NewUser creates an account with a fresh id.
func NewUser(username, passwordHash string, now time.Time) User {
	return User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now.UTC(),
		LastSeen:     now.UTC(),
	}
}

// Identity returns the broker identity for the account.
func (u User) Identity() Identity {
	return Identity{UserID: u.ID, DisplayName: u.Username}
}
