// Package sales tracks sales made to clients.
package sales

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a sale does not exist for the owner.
	ErrNotFound = errors.New("sales: sale not found")
	// ErrUnknownClient is returned when the client is not in the owner's book.
	ErrUnknownClient = errors.New("sales: unknown client")
	// ErrAlreadyCompleted is returned when completing a completed sale.
	ErrAlreadyCompleted = errors.New("sales: sale already completed")
)

// DateLayout is the form and receipt format of sale dates.
const DateLayout = "2006-01-02"

// Status filters the sale list.
type Status string

const (
	StatusAll       Status = ""
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
)

// ParseStatus maps a query value to a Status; unknown values mean all.
func ParseStatus(raw string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusOpen:
		return StatusOpen
	case StatusCompleted:
		return StatusCompleted
	}
	return StatusAll
}

// Sale is one recorded sale.
type Sale struct {
	ID          string
	OwnerID     string
	ClientID    string
	ClientName  string
	SaleDate    time.Time
	Instagram   string
	Notes       string
	IsCompleted bool
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// Input carries the fields of a new sale.
type Input struct {
	ClientID  string    `validate:"required,uuid"`
	SaleDate  time.Time `validate:"required"`
	Instagram string    `validate:"omitempty,max=100"`
	Notes     string    `validate:"omitempty,max=2000"`
}

// Normalize trims whitespace and truncates the date to a day.
func (in Input) Normalize() Input {
	in.ClientID = strings.TrimSpace(in.ClientID)
	in.Instagram = strings.TrimPrefix(strings.TrimSpace(in.Instagram), "@")
	in.Notes = strings.TrimSpace(in.Notes)
	if !in.SaleDate.IsZero() {
		y, m, d := in.SaleDate.Date()
		in.SaleDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return in
}

// ValidationError lists invalid form fields by field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "sales: invalid input"
}
