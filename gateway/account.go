package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Register creates an account. Validation errors from the server come back
// as OK=false with the server's message.
func (c *Client) Register(ctx context.Context, name, email, password string) Result[struct{}] {
	if name == "" || email == "" || password == "" {
		return failure[struct{}](ErrInvalidInput, "name, email and password are required")
	}
	body, err := jsonBody(map[string]string{"name": name, "email": email, "password": password})
	if err != nil {
		return fromError[struct{}](err.Error(), err)
	}
	msg, err := c.call(ctx, request{
		method:      http.MethodPost,
		path:        "/register",
		body:        body,
		contentType: "application/json",
	}, nil)
	if err != nil {
		return fromError[struct{}](msg, err)
	}
	return success(msg, struct{}{})
}

// Login authenticates and returns the bearer token as Data. Rejected
// credentials wrap ErrServerRejected (or ErrUnauthenticated on 401); a
// successful response without a token wraps ErrNoToken.
func (c *Client) Login(ctx context.Context, email, password string) Result[string] {
	if email == "" || password == "" {
		return failure[string](ErrInvalidInput, "email and password are required")
	}
	body, err := jsonBody(map[string]string{"email": email, "password": password})
	if err != nil {
		return fromError[string](err.Error(), err)
	}
	var decoded map[string]any
	msg, err := c.call(ctx, request{
		method:      http.MethodPost,
		path:        "/login",
		body:        body,
		contentType: "application/json",
	}, &decoded)
	if errors.Is(err, ErrUnauthenticated) {
		// A 401 from /login means bad credentials, not a bad token.
		err = fmt.Errorf("%w: %s", ErrServerRejected, msg)
	}
	if err != nil {
		return fromError[string](msg, err)
	}
	token, err := ExtractToken(decoded)
	if err != nil {
		return fromError[string](err.Error(), err)
	}
	return success(msg, token)
}
