package relay

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/npezzotti/go-dmrelay/internal/auth"
	"github.com/npezzotti/go-dmrelay/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRegisterParams() RegisterParams {
	return RegisterParams{
		Handle:    "alice",
		FirstName: "Alice",
		LastName:  "Smith",
		Email:     "alice@example.com",
		Password:  "password123",
	}
}

func TestAccounts_Register(t *testing.T) {
	ctx := context.Background()

	tcases := []struct {
		name   string
		modify func(p *RegisterParams)
		field  string
	}{
		{name: "valid"},
		{name: "bad handle", modify: func(p *RegisterParams) { p.Handle = "a b" }, field: "handle"},
		{name: "long handle", modify: func(p *RegisterParams) { p.Handle = strings.Repeat("a", 21) }, field: "handle"},
		{name: "missing first name", modify: func(p *RegisterParams) { p.FirstName = "" }, field: "first_name"},
		{name: "long last name", modify: func(p *RegisterParams) { p.LastName = strings.Repeat("b", 21) }, field: "last_name"},
		{name: "invalid email", modify: func(p *RegisterParams) { p.Email = "not-an-email" }, field: "email"},
		{name: "named email", modify: func(p *RegisterParams) { p.Email = "Alice <alice@example.com>" }, field: "email"},
		{name: "missing password", modify: func(p *RegisterParams) { p.Password = "" }, field: "password"},
		{name: "long password", modify: func(p *RegisterParams) { p.Password = strings.Repeat("p", 73) }, field: "password"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			repo := database.NewMemoryRelayRepository()
			accounts := NewAccounts(repo, auth.NewTokenService([]byte("secret"), time.Hour))

			params := validRegisterParams()
			if tc.modify != nil {
				tc.modify(&params)
			}

			i, err := accounts.Register(ctx, params)
			if tc.field != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tc.field, verr.Field)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "alice", i.Handle)
			assert.Equal(t, database.StatusDisconnected, i.Status)
			assert.NotEqual(t, params.Password, i.PasswordHash)
			assert.True(t, auth.VerifyPassword(i.PasswordHash, params.Password))
		})
	}
}

func TestAccounts_RegisterDuplicate(t *testing.T) {
	ctx := context.Background()
	accounts := NewAccounts(database.NewMemoryRelayRepository(), auth.NewTokenService([]byte("secret"), time.Hour))

	_, err := accounts.Register(ctx, validRegisterParams())
	require.NoError(t, err)

	_, err = accounts.Register(ctx, validRegisterParams())
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAccounts_Login(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryRelayRepository()
	tokens := auth.NewTokenService([]byte("secret"), time.Hour)
	accounts := NewAccounts(repo, tokens)

	_, err := accounts.Register(ctx, validRegisterParams())
	require.NoError(t, err)
	_, err = repo.UpsertPresence(ctx, "lurker", database.StatusConnected)
	require.NoError(t, err)

	res, err := accounts.Login(ctx, "alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Handle)
	assert.WithinDuration(t, time.Now().Add(time.Hour), res.ExpiresAt, 5*time.Second)

	handle, err := tokens.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", handle)

	tcases := []struct {
		name, handle, password string
	}{
		{"wrong password", "alice", "nope"},
		{"unknown handle", "bob", "password123"},
		{"no credential", "lurker", ""},
		{"empty", "", ""},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := accounts.Login(ctx, tc.handle, tc.password)
			assert.ErrorIs(t, err, ErrBadCredentials)
		})
	}
}
