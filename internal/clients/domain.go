// Package clients manages the client book of each user.
package clients

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a client does not exist for the owner.
	ErrNotFound = errors.New("clients: client not found")
	// ErrInUse is returned when deleting a client that still has sales.
	ErrInUse = errors.New("clients: client has sales")
)

// Client is one entry of a user's client book.
type Client struct {
	ID        string
	OwnerID   string
	Name      string
	Email     string
	Phone     string
	Instagram string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Input carries the editable fields of a client.
type Input struct {
	Name      string `validate:"required,max=200"`
	Email     string `validate:"omitempty,email,max=254"`
	Phone     string `validate:"omitempty,max=50"`
	Instagram string `validate:"omitempty,max=100"`
	Notes     string `validate:"omitempty,max=2000"`
}

// Normalize trims whitespace and the leading "@" of Instagram handles.
func (in Input) Normalize() Input {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Instagram = strings.TrimPrefix(strings.TrimSpace(in.Instagram), "@")
	in.Notes = strings.TrimSpace(in.Notes)
	return in
}

// InputOf returns the editable fields of c.
func InputOf(c Client) Input {
	return Input{Name: c.Name, Email: c.Email, Phone: c.Phone, Instagram: c.Instagram, Notes: c.Notes}
}

// Option is a client reference used by pickers on other screens.
type Option struct {
	ID   string
	Name string
}

// ValidationError lists invalid form fields by field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "clients: invalid input"
}
