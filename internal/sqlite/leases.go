package sqlite

import (
	"context"
	"time"
)

// AcquireLease takes the named lease when it is free, expired, or already
// held by the same holder (which extends it).
func (r Repo) AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	const q = `INSERT INTO sync_leases (name, holder, expires_at) VALUES (?, ?, ?)
	ON CONFLICT (name) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
	WHERE sync_leases.expires_at < ? OR sync_leases.holder = excluded.holder;`

	now := time.Now()
	res, err := r.db.ExecContext(ctx, q, name, holder, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, storeErr("error acquiring lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("error reading affected rows: %w", err)
	}

	return n > 0, nil
}

func (r Repo) ReleaseLease(ctx context.Context, name, holder string) error {
	const q = `DELETE FROM sync_leases WHERE name = ? AND holder = ?;`

	if _, err := r.db.ExecContext(ctx, q, name, holder); err != nil {
		return storeErr("error releasing lease: %w", err)
	}

	return nil
}
