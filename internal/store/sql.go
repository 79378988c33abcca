package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/pocketbase/dbx"
	_ "modernc.org/sqlite"

	"campus-events/internal/status"
	"campus-events/models"
)

var _ Store = (*SQLStore)(nil)

const (
	eventsTable    = "campus_events"
	resourcesTable = "campus_resources"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS campus_events (
		id           TEXT PRIMARY KEY,
		venue        TEXT NOT NULL DEFAULT '',
		event_date   TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL DEFAULT '',
		organizer_id TEXT NOT NULL DEFAULT '',
		version      BIGINT NOT NULL,
		data         TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_campus_events_venue_date ON campus_events (venue, event_date)`,
	`CREATE TABLE IF NOT EXISTS campus_resources (
		id      TEXT PRIMARY KEY,
		version BIGINT NOT NULL,
		data    TEXT NOT NULL
	)`,
}

// EnsureSchema creates the store tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db dbx.Builder) error {
	for _, stmt := range schema {
		if _, err := db.NewQuery(stmt).WithContext(ctx).Execute(); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func DropSchema(ctx context.Context, db dbx.Builder) error {
	for _, table := range []string{eventsTable, resourcesTable} {
		if _, err := db.DropTable(table).WithContext(ctx).Execute(); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	return nil
}

// OpenSQL opens a sqlite or postgres database through dbx.
func OpenSQL(driver, dsn string) (*dbx.DB, error) {
	switch driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	db, err := dbx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return db, nil
}

type docRow struct {
	ID      string `db:"id"`
	Version int64  `db:"version"`
	Data    string `db:"data"`
}

// SQLStore keeps each entity as a JSON document next to a version column.
// Writes are compare-and-swap on (id, version).
type SQLStore struct {
	db   dbx.Builder
	opts Options
}

func NewSQLStore(db dbx.Builder, opts Options) *SQLStore {
	return &SQLStore{db: db, opts: opts.withDefaults()}
}

func (s *SQLStore) CreateEvent(ctx context.Context, ev models.Event) (models.Event, error) {
	if ev.ID == "" {
		return models.Event{}, status.Validation("event id is required")
	}
	ev = stampNewEvent(ev, s.opts.Now())
	payload, err := json.Marshal(ev)
	if err != nil {
		return models.Event{}, fmt.Errorf("encode event: %w", err)
	}
	if err := s.ensureAbsent(ctx, eventsTable, "event", ev.ID); err != nil {
		return models.Event{}, err
	}
	_, err = s.db.Insert(eventsTable, dbx.Params{
		"id":           ev.ID,
		"venue":        ev.Venue,
		"event_date":   ev.Date,
		"status":       string(ev.Status),
		"organizer_id": ev.Organizer.ID,
		"version":      ev.Version,
		"data":         string(payload),
	}).WithContext(ctx).Execute()
	if err != nil {
		return models.Event{}, fmt.Errorf("insert event %s: %w", ev.ID, err)
	}
	return ev, nil
}

func (s *SQLStore) GetEvent(ctx context.Context, id string) (models.Event, error) {
	row, err := s.row(ctx, eventsTable, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Event{}, eventNotFound(id)
	}
	if err != nil {
		return models.Event{}, err
	}
	return decodeEvent(row)
}

func (s *SQLStore) ListEvents(ctx context.Context, q EventQuery) ([]models.Event, error) {
	query := s.db.Select("id", "version", "data").From(eventsTable).WithContext(ctx)
	if q.Venue != "" {
		query.AndWhere(dbx.HashExp{"venue": q.Venue})
	}
	if q.Date != "" {
		query.AndWhere(dbx.HashExp{"event_date": q.Date})
	}
	if q.From != "" {
		query.AndWhere(dbx.NewExp("[[event_date]] >= {:from}", dbx.Params{"from": q.From}))
	}
	if q.To != "" {
		query.AndWhere(dbx.NewExp("[[event_date]] <= {:to}", dbx.Params{"to": q.To}))
	}
	if len(q.Statuses) > 0 {
		values := make([]any, len(q.Statuses))
		for i, st := range q.Statuses {
			values[i] = string(st)
		}
		query.AndWhere(dbx.In("status", values...))
	}
	if q.OrganizerID != "" {
		query.AndWhere(dbx.HashExp{"organizer_id": q.OrganizerID})
	}
	if q.ExcludeID != "" {
		query.AndWhere(dbx.Not(dbx.HashExp{"id": q.ExcludeID}))
	}

	var rows []docRow
	if err := query.All(&rows); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]models.Event, 0, len(rows))
	for _, row := range rows {
		ev, err := decodeEvent(row)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	sortEvents(out)
	return out, nil
}

func (s *SQLStore) UpdateEvent(ctx context.Context, id string, fn EventMutation) (models.Event, error) {
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		current, err := s.GetEvent(ctx, id)
		if err != nil {
			return models.Event{}, err
		}
		next, err := applyEvent(current, fn, s.opts.Now())
		if err != nil {
			return models.Event{}, err
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return models.Event{}, fmt.Errorf("encode event: %w", err)
		}
		swapped, err := s.swap(ctx, eventsTable, id, current.Version, dbx.Params{
			"venue":        next.Venue,
			"event_date":   next.Date,
			"status":       string(next.Status),
			"organizer_id": next.Organizer.ID,
			"version":      next.Version,
			"data":         string(payload),
		})
		if err != nil {
			return models.Event{}, err
		}
		if swapped {
			return next, nil
		}
		slog.Debug("Optimistic update lost race, retrying", "entity", "event", "id", id, "attempt", attempt)
	}
	slog.Warn("Optimistic update retry budget exhausted", "entity", "event", "id", id)
	return models.Event{}, retriesExhausted("event", id, s.opts.MaxRetries)
}

func (s *SQLStore) DeleteEvent(ctx context.Context, id string, guard EventGuard) error {
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		current, err := s.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(current); err != nil {
				return err
			}
		}
		res, err := s.db.Delete(eventsTable, dbx.HashExp{"id": id, "version": current.Version}).WithContext(ctx).Execute()
		if err != nil {
			return fmt.Errorf("delete event %s: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 1 {
			return nil
		}
	}
	return retriesExhausted("event", id, s.opts.MaxRetries)
}

func (s *SQLStore) CreateResource(ctx context.Context, r models.Resource) (models.Resource, error) {
	if r.ID == "" {
		return models.Resource{}, status.Validation("resource id is required")
	}
	r = stampNewResource(r, s.opts.Now())
	payload, err := json.Marshal(r)
	if err != nil {
		return models.Resource{}, fmt.Errorf("encode resource: %w", err)
	}
	if err := s.ensureAbsent(ctx, resourcesTable, "resource", r.ID); err != nil {
		return models.Resource{}, err
	}
	_, err = s.db.Insert(resourcesTable, dbx.Params{
		"id":      r.ID,
		"version": r.Version,
		"data":    string(payload),
	}).WithContext(ctx).Execute()
	if err != nil {
		return models.Resource{}, fmt.Errorf("insert resource %s: %w", r.ID, err)
	}
	return r, nil
}

func (s *SQLStore) GetResource(ctx context.Context, id string) (models.Resource, error) {
	row, err := s.row(ctx, resourcesTable, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Resource{}, resourceNotFound(id)
	}
	if err != nil {
		return models.Resource{}, err
	}
	return decodeResource(row)
}

func (s *SQLStore) ListResources(ctx context.Context) ([]models.Resource, error) {
	var rows []docRow
	err := s.db.Select("id", "version", "data").From(resourcesTable).OrderBy("id ASC").WithContext(ctx).All(&rows)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	out := make([]models.Resource, 0, len(rows))
	for _, row := range rows {
		r, err := decodeResource(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *SQLStore) UpdateResource(ctx context.Context, id string, fn ResourceMutation) (models.Resource, error) {
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		current, err := s.GetResource(ctx, id)
		if err != nil {
			return models.Resource{}, err
		}
		next, err := applyResource(current, fn, s.opts.Now())
		if err != nil {
			return models.Resource{}, err
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return models.Resource{}, fmt.Errorf("encode resource: %w", err)
		}
		swapped, err := s.swap(ctx, resourcesTable, id, current.Version, dbx.Params{
			"version": next.Version,
			"data":    string(payload),
		})
		if err != nil {
			return models.Resource{}, err
		}
		if swapped {
			return next, nil
		}
		slog.Debug("Optimistic update lost race, retrying", "entity", "resource", "id", id, "attempt", attempt)
	}
	slog.Warn("Optimistic update retry budget exhausted", "entity", "resource", "id", id)
	return models.Resource{}, retriesExhausted("resource", id, s.opts.MaxRetries)
}

func (s *SQLStore) row(ctx context.Context, table, id string) (docRow, error) {
	var row docRow
	err := s.db.Select("id", "version", "data").From(table).Where(dbx.HashExp{"id": id}).WithContext(ctx).One(&row)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return docRow{}, fmt.Errorf("load %s %s: %w", table, id, err)
	}
	return row, err
}

func (s *SQLStore) ensureAbsent(ctx context.Context, table, entity, id string) error {
	_, err := s.row(ctx, table, id)
	switch {
	case err == nil:
		return status.New(status.KindDuplicate, "%s %s already exists", entity, id)
	case errors.Is(err, sql.ErrNoRows):
		return nil
	default:
		return err
	}
}

// swap writes params only if the row still carries version.
func (s *SQLStore) swap(ctx context.Context, table, id string, version int64, params dbx.Params) (bool, error) {
	res, err := s.db.Update(table, params, dbx.HashExp{"id": id, "version": version}).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("update %s %s: %w", table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update %s %s: %w", table, id, err)
	}
	return n == 1, nil
}

func decodeEvent(row docRow) (models.Event, error) {
	var ev models.Event
	if err := json.Unmarshal([]byte(row.Data), &ev); err != nil {
		return models.Event{}, fmt.Errorf("decode event %s: %w", row.ID, err)
	}
	ev.Version = row.Version
	return ev, nil
}

func decodeResource(row docRow) (models.Resource, error) {
	var r models.Resource
	if err := json.Unmarshal([]byte(row.Data), &r); err != nil {
		return models.Resource{}, fmt.Errorf("decode resource %s: %w", row.ID, err)
	}
	r.Version = row.Version
	return r, nil
}
