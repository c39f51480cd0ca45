package sqlite

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/jdholdren/readersync/internal/reader"
)

const pinColumns = `id, uri, title, action, created_time`

func (r Repo) InsertPin(ctx context.Context, pin reader.Pin) (int64, error) {
	const q = `INSERT INTO pins (uri, title, action, created_time) VALUES (:uri, :title, :action, :created_time);`

	res, err := r.db.NamedExecContext(ctx, q, pin)
	if err != nil {
		return 0, storeErr("error inserting pin: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeErr("error reading pin id: %w", err)
	}

	return id, nil
}

func (r Repo) Pins(ctx context.Context) ([]reader.Pin, error) {
	const q = `SELECT ` + pinColumns + ` FROM pins ORDER BY created_time DESC, id DESC;`

	pins := []reader.Pin{}
	if err := r.db.SelectContext(ctx, &pins, q); err != nil {
		return nil, storeErr("error selecting pins: %w", err)
	}

	return pins, nil
}

// QueuedPins returns the outbox in the order the mutations were made.
func (r Repo) QueuedPins(ctx context.Context) ([]reader.Pin, error) {
	query, args, err := sq.Select(pinColumns).
		From("pins").
		Where(sq.Gt{"action": reader.PinActionNone}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	pins := []reader.Pin{}
	if err := r.db.SelectContext(ctx, &pins, query, args...); err != nil {
		return nil, storeErr("error selecting queued pins: %w", err)
	}

	return pins, nil
}

func (r Repo) SetPinAction(ctx context.Context, id int64, action reader.PinAction) error {
	const q = `UPDATE pins SET action = ? WHERE id = ?;`

	if _, err := r.db.ExecContext(ctx, q, action, id); err != nil {
		return storeErr("error updating pin action: %w", err)
	}

	return nil
}

func (r Repo) DeletePin(ctx context.Context, id int64) error {
	return r.deletePins(ctx, sq.Eq{"id": id})
}

func (r Repo) DeleteQueuedPins(ctx context.Context, uri string) error {
	return r.deletePins(ctx, sq.And{sq.Eq{"uri": uri}, sq.Gt{"action": reader.PinActionNone}})
}

func (r Repo) DeleteMirrorPins(ctx context.Context, uri string) error {
	return r.deletePins(ctx, sq.Eq{"uri": uri, "action": reader.PinActionNone})
}

func (r Repo) DeletePinsByURI(ctx context.Context, uri string) error {
	return r.deletePins(ctx, sq.Eq{"uri": uri})
}

func (r Repo) ClearPinMirror(ctx context.Context) error {
	return r.deletePins(ctx, sq.Eq{"action": reader.PinActionNone})
}

func (r Repo) ClearPins(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pins;`); err != nil {
		return storeErr("error clearing pins: %w", err)
	}

	return nil
}

func (r Repo) deletePins(ctx context.Context, where sq.Sqlizer) error {
	query, args, err := sq.Delete("pins").Where(where).ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %s", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return storeErr("error deleting pins: %w", err)
	}

	return nil
}
