package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/gatehouse/pkg/signator"
)

// KeyLoaderAdapter adapts a Store's secrets repo to the signator.KeyLoader
// interface, so the signature stage can resolve signing secrets without
// depending on the store package directly.
type KeyLoaderAdapter struct {
	store Store
}

// NewKeyLoaderAdapter creates an adapter that implements signator.KeyLoader
// backed by the given Store.
func NewKeyLoaderAdapter(store Store) *KeyLoaderAdapter {
	return &KeyLoaderAdapter{store: store}
}

var _ signator.KeyLoader = (*KeyLoaderAdapter)(nil)

// Resolve returns the active signing secret for userID. An unknown or
// deactivated user maps to signator.ErrUnknownUser so the stage responds
// with an auth fault rather than a server fault.
func (a *KeyLoaderAdapter) Resolve(ctx context.Context, userID string) (string, error) {
	secret, err := a.store.Secrets().GetSecret(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("%w: %s", signator.ErrUnknownUser, userID)
		}
		return "", err
	}
	if !secret.Active {
		return "", fmt.Errorf("%w: %s (deactivated)", signator.ErrUnknownUser, userID)
	}
	return secret.Secret, nil
}
