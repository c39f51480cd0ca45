package sqlite

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/jdholdren/readersync/internal/reader"
)

func (r Repo) ItemExists(ctx context.Context, subscriptionID, id int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM items WHERE subscription_id = ? AND id = ?);`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, q, subscriptionID, id); err != nil {
		return false, storeErr("error checking item: %w", err)
	}

	return exists, nil
}

// InsertItem adds an item. Items are append-only: a row that is already
// present is left exactly as it was.
func (r Repo) InsertItem(ctx context.Context, item reader.Item) error {
	const q = `INSERT OR IGNORE INTO items (subscription_id, id, title, body, author, link, created_time, modified_time, unread)
	VALUES (:subscription_id, :id, :title, :body, :author, :link, :created_time, :modified_time, :unread);`

	if _, err := r.db.NamedExecContext(ctx, q, item); err != nil {
		return storeErr("error inserting item: %w", err)
	}

	return nil
}

func (r Repo) CountUnreadItems(ctx context.Context, subscriptionID int64) (int, error) {
	return r.countUnread(ctx, sq.Eq{"subscription_id": subscriptionID, "unread": 1})
}

func (r Repo) CountAllUnreadItems(ctx context.Context) (int, error) {
	return r.countUnread(ctx, sq.Eq{"unread": 1})
}

func (r Repo) countUnread(ctx context.Context, where sq.Eq) (int, error) {
	query, args, err := sq.Select("COUNT(*)").From("items").Where(where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("error constructing sql: %s", err)
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, storeErr("error counting unread items: %w", err)
	}

	return count, nil
}

// Items returns the stored items of a subscription, newest first.
func (r Repo) Items(ctx context.Context, subscriptionID int64) ([]reader.Item, error) {
	const q = `SELECT subscription_id, id, title, body, author, link, created_time, modified_time, unread
	FROM items WHERE subscription_id = ? ORDER BY id DESC;`

	items := []reader.Item{}
	if err := r.db.SelectContext(ctx, &items, q, subscriptionID); err != nil {
		return nil, storeErr("error selecting items: %w", err)
	}

	return items, nil
}
