package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event is one row of the append-only event_log.
type Event struct {
	Seq       int64           `json:"seq"`
	SiteID    string          `json:"site_id"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type EventRepo struct {
	db     *sql.DB
	siteID string
	now    func() time.Time
}

func NewEventRepo(db *sql.DB, siteID string) *EventRepo {
	if siteID == "" {
		siteID = "local"
	}
	return &EventRepo{db: db, siteID: siteID, now: time.Now}
}

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	if e.SiteID == "" {
		e.SiteID = r.siteID
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	data := string(e.Data)
	if data == "" {
		data = "null"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, entity_key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.SiteID, e.Type, e.Key, data, e.CreatedAt.UnixMilli())
	return err
}

// Publish marshals data and appends it. It satisfies exam.EventSink.
func (r *EventRepo) Publish(ctx context.Context, typ, key string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("event %s: %w", typ, err)
	}
	return r.Append(ctx, Event{Type: typ, Key: key, Data: raw})
}

// List returns events oldest first. An empty key lists every entity.
func (r *EventRepo) List(ctx context.Context, key string, limit int) ([]Event, error) {
	return r.query(ctx, key, limit, false)
}

// Recent returns the latest events across all entities, newest first.
func (r *EventRepo) Recent(ctx context.Context, limit int) ([]Event, error) {
	return r.query(ctx, "", limit, true)
}

func (r *EventRepo) query(ctx context.Context, key string, limit int, newest bool) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT seq, site_id, typ, entity_key, data, created_at FROM event_log`
	args := []any{}
	if key != "" {
		q += ` WHERE entity_key=$1`
		args = append(args, key)
	}
	args = append(args, limit)
	order := "seq"
	if newest {
		order = "seq DESC"
	}
	q += fmt.Sprintf(` ORDER BY %s LIMIT $%d`, order, len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		var data string
		var created int64
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &data, &created); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		e.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
