package gateway

import (
	"context"
	"net/http"
)

// Keys are the push subscription keys issued by the browser.
type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscribe registers a push endpoint with the server. A logical error flag
// in the response is reported exactly like a transport failure: OK=false.
func (c *Client) Subscribe(ctx context.Context, endpoint string, keys Keys) Result[struct{}] {
	if endpoint == "" || keys.P256dh == "" || keys.Auth == "" {
		return failure[struct{}](ErrInvalidInput, "endpoint and keys are required")
	}
	body, err := jsonBody(struct {
		Endpoint string `json:"endpoint"`
		Keys     Keys   `json:"keys"`
	}{endpoint, keys})
	if err != nil {
		return fromError[struct{}](err.Error(), err)
	}
	return c.notificationCall(ctx, http.MethodPost, body)
}

// Unsubscribe removes a push endpoint from the server.
func (c *Client) Unsubscribe(ctx context.Context, endpoint string) Result[struct{}] {
	if endpoint == "" {
		return failure[struct{}](ErrInvalidInput, "endpoint is required")
	}
	body, err := jsonBody(map[string]string{"endpoint": endpoint})
	if err != nil {
		return fromError[struct{}](err.Error(), err)
	}
	return c.notificationCall(ctx, http.MethodDelete, body)
}

func (c *Client) notificationCall(ctx context.Context, method string, body []byte) Result[struct{}] {
	msg, err := c.call(ctx, request{
		method:      method,
		path:        "/notifications/subscribe",
		body:        body,
		contentType: "application/json",
		requireAuth: true,
	}, nil)
	if err != nil {
		return fromError[struct{}](msg, err)
	}
	return success(msg, struct{}{})
}
