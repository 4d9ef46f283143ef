package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/gatehouse/domain"
)

type secretsRepo struct {
	q queryer
}

func (r *secretsRepo) GetSecret(ctx context.Context, userID string) (domain.Secret, error) {
	var s domain.Secret
	err := r.q.QueryRowContext(ctx, `
		SELECT user_id, secret, active, created_at, updated_at
		FROM signing_secrets
		WHERE user_id = ?
	`, userID).Scan(&s.UserID, &s.Secret, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.Secret{}, mapNotFound(err)
	}
	return s, nil
}

func (r *secretsRepo) UpsertSecret(ctx context.Context, userID, secret string) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO signing_secrets (user_id, secret, active, created_at, updated_at)
		VALUES (?, ?, TRUE, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			secret = excluded.secret,
			active = TRUE,
			updated_at = excluded.updated_at
	`, userID, secret, now, now)
	return err
}

func (r *secretsRepo) DeactivateSecret(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE signing_secrets SET active = FALSE, updated_at = ? WHERE user_id = ?
	`, time.Now().UTC(), userID)
	return err
}

func (r *secretsRepo) DeleteSecret(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM signing_secrets WHERE user_id = ?`, userID)
	return err
}
