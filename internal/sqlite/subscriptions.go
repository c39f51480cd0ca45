package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/jdholdren/readersync/internal/reader"
)

const subscriptionColumns = `id, title, link, icon_uri, icon, folder, rate, subscribers_count, unread_count, modified_time, item_sync_time`

// UpdateSubscription overwrites what the remote listing owns. The cached
// unread count, the icon bytes and the item watermark are never touched here.
func (r Repo) UpdateSubscription(ctx context.Context, sub reader.Subscription) (int64, error) {
	query, args, err := sq.Update("subscriptions").
		SetMap(map[string]any{
			"title":             sub.Title,
			"link":              sub.Link,
			"icon_uri":          sub.IconURI,
			"folder":            sub.Folder,
			"rate":              sub.Rate,
			"subscribers_count": sub.SubscribersCount,
			"modified_time":     sub.ModifiedTime,
		}).
		Where(sq.Eq{"id": sub.ID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("error constructing sql: %s", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storeErr("error updating subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("error reading affected rows: %w", err)
	}

	return n, nil
}

func (r Repo) InsertSubscription(ctx context.Context, sub reader.Subscription) error {
	const q = `INSERT INTO subscriptions (` + subscriptionColumns + `)
	VALUES (:id, :title, :link, :icon_uri, :icon, :folder, :rate, :subscribers_count, :unread_count, :modified_time, :item_sync_time);`

	if _, err := r.db.NamedExecContext(ctx, q, sub); err != nil {
		return storeErr("error inserting subscription: %w", err)
	}

	return nil
}

func (r Repo) Subscription(ctx context.Context, id int64) (reader.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = ?;`

	var sub reader.Subscription
	err := r.db.GetContext(ctx, &sub, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return reader.Subscription{}, reader.ErrNotFound
	}
	if err != nil {
		return reader.Subscription{}, storeErr("error fetching subscription: %w", err)
	}

	return sub, nil
}

// Subscriptions returns every subscription, grouped by folder.
func (r Repo) Subscriptions(ctx context.Context) ([]reader.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + ` FROM subscriptions ORDER BY folder, id;`

	subs := []reader.Subscription{}
	if err := r.db.SelectContext(ctx, &subs, q); err != nil {
		return nil, storeErr("error selecting subscriptions: %w", err)
	}

	return subs, nil
}

// StaleSubscriptions returns the subscriptions whose items are behind the remote.
func (r Repo) StaleSubscriptions(ctx context.Context) ([]reader.Subscription, error) {
	query, args, err := sq.Select(subscriptionColumns).
		From("subscriptions").
		Where(sq.Expr("modified_time <> item_sync_time")).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	subs := []reader.Subscription{}
	if err := r.db.SelectContext(ctx, &subs, query, args...); err != nil {
		return nil, storeErr("error selecting stale subscriptions: %w", err)
	}

	return subs, nil
}

func (r Repo) MarkItemsSynced(ctx context.Context, id int64, syncTime int64, unreadCount int) error {
	const q = `UPDATE subscriptions SET item_sync_time = ?, unread_count = ? WHERE id = ?;`

	if _, err := r.db.ExecContext(ctx, q, syncTime, unreadCount, id); err != nil {
		return storeErr("error marking items synced: %w", err)
	}

	return nil
}
