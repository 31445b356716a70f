package auth

import "time"

// User represents an authenticated user account. ID is the identity the
// authorization layer keys records on.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUserInput carries the fields needed to provision an account.
type NewUserInput struct {
	Email    string `validate:"required,email"`
	Name     string `validate:"required,max=120"`
	Password string `validate:"required,min=8"`
}
