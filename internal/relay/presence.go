package relay

import (
	"context"

	"github.com/npezzotti/go-dmrelay/internal/database"
)

// PresenceTracker flips the presence flag stored on each identity.
type PresenceTracker struct {
	identities IdentityStore
}

func NewPresenceTracker(identities IdentityStore) *PresenceTracker {
	return &PresenceTracker{identities: identities}
}

// Connect marks handle as connected, creating a bare identity if the store
// has never seen it.
func (p *PresenceTracker) Connect(ctx context.Context, handle string) (database.Identity, error) {
	i, err := p.identities.UpsertPresence(ctx, handle, database.StatusConnected)
	if err != nil {
		return database.Identity{}, storageErr("connect", err)
	}

	return i, nil
}

// Disconnect marks an existing identity as disconnected. Unknown handles
// fail with ErrNotFound.
func (p *PresenceTracker) Disconnect(ctx context.Context, handle string) (database.Identity, error) {
	if _, err := p.identities.GetIdentity(ctx, handle); err != nil {
		return database.Identity{}, storageErr("find identity", err)
	}

	i, err := p.identities.UpdatePresence(ctx, handle, database.StatusDisconnected)
	if err != nil {
		return database.Identity{}, storageErr("disconnect", err)
	}

	return i, nil
}

func (p *PresenceTracker) ListConnected(ctx context.Context) ([]database.Identity, error) {
	identities, err := p.identities.ListIdentitiesByStatus(ctx, database.StatusConnected)
	if err != nil {
		return nil, storageErr("list connected", err)
	}

	return identities, nil
}

// Reset marks every identity disconnected and returns how many were flipped.
// It runs at startup, before any session can exist.
func (p *PresenceTracker) Reset(ctx context.Context) (int64, error) {
	n, err := p.identities.ResetPresence(ctx)
	if err != nil {
		return 0, storageErr("reset presence", err)
	}

	return n, nil
}
