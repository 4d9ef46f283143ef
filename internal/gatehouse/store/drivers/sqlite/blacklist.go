package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gatehouse/pkg/jwtx"
)

type blacklistRepo struct {
	q queryer
}

func (r *blacklistRepo) Add(ctx context.Context, entry jwtx.BlacklistEntry) error {
	blacklistedAt := entry.BlacklistedAt
	if blacklistedAt.IsZero() {
		blacklistedAt = time.Now().UTC()
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO token_blacklist (token_id, user_id, blacklisted_at, expires_at, reason)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (token_id) DO UPDATE SET
			user_id = excluded.user_id,
			blacklisted_at = excluded.blacklisted_at,
			expires_at = excluded.expires_at,
			reason = excluded.reason
	`, entry.TokenID, entry.UserID, blacklistedAt, entry.ExpiresAt.UTC(), entry.Reason)
	return err
}

func (r *blacklistRepo) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	var count int64
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM token_blacklist
		WHERE token_id = ? AND expires_at > ?
	`, tokenID, time.Now().UTC()).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *blacklistRepo) Remove(ctx context.Context, tokenID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM token_blacklist WHERE token_id = ?`, tokenID)
	return err
}

func (r *blacklistRepo) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		DELETE FROM token_blacklist WHERE expires_at <= ?
	`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *blacklistRepo) ListByUser(ctx context.Context, userID string) ([]jwtx.BlacklistEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT token_id, user_id, blacklisted_at, expires_at, reason
		FROM token_blacklist
		WHERE user_id = ? AND expires_at > ?
		ORDER BY blacklisted_at DESC
	`, userID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []jwtx.BlacklistEntry
	for rows.Next() {
		var e jwtx.BlacklistEntry
		if err := rows.Scan(&e.TokenID, &e.UserID, &e.BlacklistedAt, &e.ExpiresAt, &e.Reason); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
