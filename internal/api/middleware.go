package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/npezzotti/go-dmrelay/internal/auth"
)

func (s *RelayApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Printf("panic: %v", panicError)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// authMiddleware verifies the bearer token once and passes the resolved
// handle to next through the request context.
func (s *RelayApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="dmrelay"`)
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		handle, err := s.core.Tokens.Verify(token)
		if err != nil {
			desc := "invalid token"
			if errors.Is(err, auth.ErrExpired) {
				desc = "token expired"
				s.log.Printf("rejected expired token: %v", err)
			} else {
				s.log.Printf("rejected untrusted token: %v", err)
			}

			w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="dmrelay", error="invalid_token", error_description=%q`, desc))
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ctx := WithHandle(r.Context(), handle)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}
