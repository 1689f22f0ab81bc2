// Package models provides data models for the address registry.
package models

import "time"

// Address represents one submitted address and its request metadata.
// Signature and Message are nil for legacy rows and for tables that
// predate the signature migration.
type Address struct {
	ID        int64     `json:"id" db:"id"`
	Address   string    `json:"address" db:"address"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	UserAgent *string   `json:"user_agent" db:"user_agent"`
	Notes     *string   `json:"notes" db:"notes"`
	Signature *string   `json:"signature,omitempty" db:"signature"`
	Message   *string   `json:"message,omitempty" db:"message"`
}

// NewAddress is the input for inserting an address record
type NewAddress struct {
	Address   string
	UserAgent *string
	Notes     *string
	Signature *string
	Message   *string
}

// HasSignature reports whether both signature fields were supplied
func (n *NewAddress) HasSignature() bool {
	return n.Signature != nil && n.Message != nil
}
