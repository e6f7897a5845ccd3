package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

type contextKey string

const handleKey contextKey = "handle"

const accessTokenParam = "access_token"

// WithHandle stores the authenticated handle on ctx.
func WithHandle(ctx context.Context, handle string) context.Context {
	return context.WithValue(ctx, handleKey, handle)
}

// Handle returns the authenticated handle stored on ctx.
func Handle(ctx context.Context) (string, bool) {
	handle, ok := ctx.Value(handleKey).(string)
	return handle, ok && handle != ""
}

// bearerToken extracts the credential from the Authorization header.
// Websocket upgrades may pass it as a query parameter instead, since
// browsers cannot set headers on the handshake.
func bearerToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", false
		}

		token = strings.TrimSpace(token)
		return token, token != ""
	}

	if websocket.IsWebSocketUpgrade(r) {
		token := r.URL.Query().Get(accessTokenParam)
		return token, token != ""
	}

	return "", false
}
