package signator

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
)

// ErrUnknownUser reports a user id with no registered signing secret.
var ErrUnknownUser = errors.New("signator: unknown user")

// KeyLoader resolves the shared signing secret for a user. Implementations
// may hit a database, a config file or a remote service; resolution is a
// suspension point and must honour the context.
type KeyLoader interface {
	Resolve(ctx context.Context, userID string) (string, error)
}

// StaticKeyLoader serves secrets from a fixed map. Handy for tests and
// small deployments.
type StaticKeyLoader map[string]string

func (l StaticKeyLoader) Resolve(_ context.Context, userID string) (string, error) {
	secret, ok := l[userID]
	if !ok {
		return "", ErrUnknownUser
	}
	return secret, nil
}

// NewNonce returns a client-side nonce of valid length (32 hex chars).
func NewNonce() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}
