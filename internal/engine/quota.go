package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxRows is the default cap on rows written by one request.
const DefaultMaxRows = 10000

// RowQuota counts the rows a request dispatches and enforces a maximum.
//
// Multi-row steps expand one request into as many rows as the longest
// parameter list, so a single oversized submission could otherwise write
// without bound. Each request gets its own RowQuota; it is not safe for
// concurrent use.
type RowQuota struct {
	max     int
	current int
}

// NewRowQuota creates a quota allowing max rows. max <= 0 disables it.
func NewRowQuota(max int) *RowQuota {
	return &RowQuota{max: max}
}

// Take reserves n rows for resource.
func (q *RowQuota) Take(requestID, resource string, n int) error {
	q.current += n
	if q.max > 0 && q.current > q.max {
		return &RowsExceededError{
			RequestID: requestID,
			Resource:  resource,
			Rows:      q.current,
			Limit:     q.max,
		}
	}
	return nil
}

// Current returns the rows reserved so far.
func (q *RowQuota) Current() int { return q.current }

// Max returns the limit.
func (q *RowQuota) Max() int { return q.max }

// RowsExceededError is returned when a request dispatches more rows than
// its quota allows. The request's transaction is rolled back.
type RowsExceededError struct {
	RequestID string
	Resource  string
	Rows      int
	Limit     int
}

// Error implements the error interface.
func (e *RowsExceededError) Error() string {
	return fmt.Sprintf("request %s exceeded row quota at %s: %d rows > %d limit",
		e.RequestID, e.Resource, e.Rows, e.Limit)
}

// IsRowsExceededError returns true if err is or wraps a RowsExceededError.
func IsRowsExceededError(err error) bool {
	var re *RowsExceededError
	return errors.As(err, &re)
}
