package engine

import "github.com/google/uuid"

// RequestIDGenerator issues the id that groups every change event of one
// request in the change log.
type RequestIDGenerator interface {
	Generate() string
}

// UUIDv7Generator issues time-sortable UUIDv7 request ids, so change log
// rows of later requests sort after earlier ones.
//
// It is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
