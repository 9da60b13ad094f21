package engine

import "context"

// Authorizer decides whether a request's user may run it. A non-nil error
// rejects the request before anything is dispatched.
type Authorizer interface {
	Authorize(ctx context.Context, req Request) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, req Request) error

// Authorize calls f.
func (f AuthorizerFunc) Authorize(ctx context.Context, req Request) error {
	return f(ctx, req)
}
