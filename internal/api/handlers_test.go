package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-dmrelay/internal/database"
	"github.com/npezzotti/go-dmrelay/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func validRegistration(handle string) RegisterRequest {
	return RegisterRequest{
		Handle:    handle,
		FirstName: "First",
		LastName:  "Last",
		Email:     handle + "@example.com",
		Password:  "password123",
	}
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ApiError {
	t.Helper()
	var apiErr ApiError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &apiErr))
	return apiErr
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRelayRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("Ping", mock.Anything).Return(tc.mockErr).Once()

			ta := newTestApp(t, mockRepo)
			rr := ta.do(t, http.MethodGet, "/healthz", nil, "")

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected status code to be 500")
			} else {
				assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
				assert.Equal(t, "OK", rr.Body.String(), "expected response body to be 'OK'")
			}
		})
	}
}

func TestRegisterHandler(t *testing.T) {
	tcases := []struct {
		name string
		body any
		code int
	}{
		{name: "created", body: validRegistration("alice"), code: http.StatusCreated},
		{name: "duplicate handle", body: validRegistration("alice"), code: http.StatusConflict},
		{name: "duplicate email", body: RegisterRequest{Handle: "alice2", FirstName: "A", LastName: "B", Email: "alice@example.com", Password: "pw"}, code: http.StatusConflict},
		{name: "missing fields", body: RegisterRequest{Handle: "bob"}, code: http.StatusBadRequest},
		{name: "bad handle", body: validRegistration("bob smith"), code: http.StatusBadRequest},
		{name: "invalid json", body: "{", code: http.StatusBadRequest},
	}

	ta := newTestApp(t, database.NewMemoryRelayRepository())

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := ta.do(t, http.MethodPost, "/api/auth/register", tc.body, "")
			require.Equal(t, tc.code, rr.Code, rr.Body.String())

			if tc.code != http.StatusCreated {
				apiErr := decodeError(t, rr)
				assert.Equal(t, tc.code, apiErr.StatusCode)
				assert.NotEmpty(t, apiErr.Message)
				return
			}

			var summary types.IdentitySummary
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
			assert.Equal(t, "alice", summary.Handle)
			assert.Equal(t, "DISCONNECTED", summary.Status)
			assert.NotContains(t, rr.Body.String(), "password")
		})
	}
}

func TestRegisterHandler_ValidationMessage(t *testing.T) {
	ta := newTestApp(t, database.NewMemoryRelayRepository())

	req := validRegistration("carol")
	req.Email = "nope"
	rr := ta.do(t, http.MethodPost, "/api/auth/register", req, "")

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "email must be a valid address", decodeError(t, rr).Message)
}

func TestLoginHandler(t *testing.T) {
	ta := newTestApp(t, database.NewMemoryRelayRepository())
	require.Equal(t, http.StatusCreated, ta.do(t, http.MethodPost, "/api/auth/register", validRegistration("alice"), "").Code)

	t.Run("success", func(t *testing.T) {
		rr := ta.do(t, http.MethodPost, "/api/auth/login", LoginRequest{Handle: "alice", Password: "password123"}, "")
		require.Equal(t, http.StatusOK, rr.Code)

		var res LoginResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
		assert.Equal(t, "Bearer", res.TokenType)
		assert.Equal(t, int64(3600), res.ExpiresIn)
		assert.Equal(t, "alice", res.Handle)

		handle, err := ta.tokens.Verify(res.Token)
		require.NoError(t, err)
		assert.Equal(t, "alice", handle)
	})

	tcases := []struct {
		name string
		body any
		code int
	}{
		{"wrong password", LoginRequest{Handle: "alice", Password: "wrong"}, http.StatusUnauthorized},
		{"unknown handle", LoginRequest{Handle: "bob", Password: "password123"}, http.StatusUnauthorized},
		{"invalid json", "{", http.StatusBadRequest},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := ta.do(t, http.MethodPost, "/api/auth/login", tc.body, "")
			assert.Equal(t, tc.code, rr.Code)
		})
	}
}

func TestListConnectedHandler(t *testing.T) {
	repo := database.NewMemoryRelayRepository()
	ta := newTestApp(t, repo)
	ctx := context.Background()

	_, err := repo.UpsertPresence(ctx, "bob", database.StatusConnected)
	require.NoError(t, err)
	_, err = repo.UpsertPresence(ctx, "carol", database.StatusDisconnected)
	require.NoError(t, err)

	rr := ta.do(t, http.MethodGet, "/api/users", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ta.do(t, http.MethodGet, "/api/users", nil, ta.tokenFor(t, "alice"))
	require.Equal(t, http.StatusOK, rr.Code)

	var users []types.IdentitySummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Handle)
}

func TestListConnectedHandler_StorageFailure(t *testing.T) {
	repo := &database.MockRelayRepository{}
	defer repo.AssertExpectations(t)
	repo.On("ListIdentitiesByStatus", mock.Anything, database.StatusConnected).Return(nil, errors.New("down")).Once()

	ta := newTestApp(t, repo)
	rr := ta.do(t, http.MethodGet, "/api/users", nil, ta.tokenFor(t, "alice"))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestGetMessagesHandler(t *testing.T) {
	repo := database.NewMemoryRelayRepository()
	ta := newTestApp(t, repo)
	ctx := context.Background()

	for _, h := range []string{"alice", "bob"} {
		_, err := repo.UpsertPresence(ctx, h, database.StatusDisconnected)
		require.NoError(t, err)
	}

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := ta.app.core.Relay.Send(ctx, "alice", "bob", "first", base)
	require.NoError(t, err)
	_, err = ta.app.core.Relay.Send(ctx, "bob", "alice", "second", base.Add(time.Second))
	require.NoError(t, err)

	tcases := []struct {
		name   string
		caller string
		path   string
		code   int
		count  int
	}{
		{"sender reads", "alice", "/api/messages/alice/bob", http.StatusOK, 2},
		{"recipient reads reverse", "bob", "/api/messages/alice/bob", http.StatusOK, 2},
		{"other direction", "bob", "/api/messages/bob/alice", http.StatusOK, 2},
		{"no conversation yet", "alice", "/api/messages/alice/carol", http.StatusOK, 0},
		{"not a party", "carol", "/api/messages/alice/bob", http.StatusForbidden, 0},
		{"unauthenticated", "", "/api/messages/alice/bob", http.StatusUnauthorized, 0},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			token := ""
			if tc.caller != "" {
				token = ta.tokenFor(t, tc.caller)
			}

			rr := ta.do(t, http.MethodGet, tc.path, nil, token)
			require.Equal(t, tc.code, rr.Code)
			if tc.code != http.StatusOK {
				return
			}

			var msgs []types.Message
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &msgs))
			require.NotNil(t, msgs, "expected an empty array rather than null")
			require.Len(t, msgs, tc.count)
			if tc.count == 2 {
				assert.Equal(t, "first", msgs[0].Content)
				assert.Equal(t, "second", msgs[1].Content)
				assert.Equal(t, msgs[0].ConversationId, msgs[1].ConversationId)
			}
		})
	}
}

func TestServeWs(t *testing.T) {
	repo := database.NewMemoryRelayRepository()
	ta := newTestApp(t, repo)
	go ta.app.cs.Run()

	srv := httptest.NewServer(ta.handler)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	t.Run("rejects missing token", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects disallowed origin", func(t *testing.T) {
		header := http.Header{"Origin": []string{"http://evil.example"}}
		_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?access_token="+ta.tokenFor(t, "alice"), header)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("query token connects and marks presence", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?access_token="+ta.tokenFor(t, "alice"), nil)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			i, err := repo.GetIdentity(context.Background(), "alice")
			return err == nil && i.Status == database.StatusConnected
		}, 2*time.Second, 10*time.Millisecond)

		conn.Close()

		assert.Eventually(t, func() bool {
			i, err := repo.GetIdentity(context.Background(), "alice")
			return err == nil && i.Status == database.StatusDisconnected
		}, 2*time.Second, 10*time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ta.app.cs.Shutdown(ctx))
}
