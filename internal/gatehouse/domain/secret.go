package domain

import "time"

// Secret is one client's HMAC signing secret. Secrets are stored
// recoverable (not hashed) because the server must recompute signatures
// with them on every request.
type Secret struct {
	UserID    string
	Secret    string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
