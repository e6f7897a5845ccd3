package relay

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"
	"unicode/utf8"

	"github.com/npezzotti/go-dmrelay/internal/auth"
	"github.com/npezzotti/go-dmrelay/internal/database"
)

const (
	maxNameLength  = 20
	maxEmailLength = 50
	// bcrypt rejects longer input
	maxPasswordBytes = 72
)

type RegisterParams struct {
	Handle    string
	FirstName string
	LastName  string
	Email     string
	Password  string
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Handle    string
}

// Accounts registers identities and exchanges credentials for tokens.
type Accounts struct {
	identities IdentityStore
	tokens     *auth.TokenService
}

func NewAccounts(identities IdentityStore, tokens *auth.TokenService) *Accounts {
	return &Accounts{identities: identities, tokens: tokens}
}

func required(field, value string, max int) error {
	if value == "" {
		return invalid(field, "is required")
	}
	if utf8.RuneCountInString(value) > max {
		return invalid(field, fmt.Sprintf("must be at most %d characters", max))
	}
	return nil
}

func (p RegisterParams) validate() error {
	if !ValidHandle(p.Handle) {
		return invalid("handle", "must be 1-20 letters, digits, '.', '_' or '-'")
	}

	if err := required("first_name", p.FirstName, maxNameLength); err != nil {
		return err
	}
	if err := required("last_name", p.LastName, maxNameLength); err != nil {
		return err
	}
	if err := required("email", p.Email, maxEmailLength); err != nil {
		return err
	}
	if addr, err := mail.ParseAddress(p.Email); err != nil || addr.Address != p.Email {
		return invalid("email", "must be a valid address")
	}

	if p.Password == "" {
		return invalid("password", "is required")
	}
	if len(p.Password) > maxPasswordBytes {
		return invalid("password", fmt.Sprintf("must be at most %d bytes", maxPasswordBytes))
	}

	return nil
}

func (a *Accounts) Register(ctx context.Context, params RegisterParams) (database.Identity, error) {
	if err := params.validate(); err != nil {
		return database.Identity{}, err
	}

	hash, err := auth.HashPassword(params.Password)
	if err != nil {
		return database.Identity{}, fmt.Errorf("hash password: %w", err)
	}

	i, err := a.identities.CreateIdentity(ctx, database.CreateIdentityParams{
		Handle:       params.Handle,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Email:        params.Email,
		PasswordHash: hash,
	})
	if err != nil {
		return database.Identity{}, storageErr("create identity", err)
	}

	return i, nil
}

func (a *Accounts) Login(ctx context.Context, handle, password string) (LoginResult, error) {
	if handle == "" || password == "" {
		return LoginResult{}, ErrBadCredentials
	}

	i, err := a.identities.GetIdentity(ctx, handle)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return LoginResult{}, ErrBadCredentials
		}
		return LoginResult{}, storageErr("get identity", err)
	}

	// presence-only identities carry no credential
	if i.PasswordHash == "" || !auth.VerifyPassword(i.PasswordHash, password) {
		return LoginResult{}, ErrBadCredentials
	}

	token, expiresAt, err := a.tokens.Issue(i.Handle)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	return LoginResult{Token: token, ExpiresAt: expiresAt, Handle: i.Handle}, nil
}
