// Package xid builds prefixed record identifiers such as "sale-<uuid>".
package xid

import "github.com/google/uuid"

// New returns prefix joined to a random UUIDv7 so ids sort by creation time.
// It falls back to a v4 UUID if the v7 generator fails.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	if prefix == "" {
		return id.String()
	}
	return prefix + "-" + id.String()
}
