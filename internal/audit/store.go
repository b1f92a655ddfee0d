package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/portalguard/portalguard/internal/platform/database"
)

// Store handles audit event persistence.
type Store struct{}

// NewStore creates an audit Store.
func NewStore() *Store {
	return &Store{}
}

// InsertBatch writes a batch of events to the database.
func (s *Store) InsertBatch(ctx context.Context, db database.Querier, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	sql, args, err := buildBatchInsert(events)
	if err != nil {
		return fmt.Errorf("building batch insert: %w", err)
	}
	_, err = db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("inserting audit events: %w", err)
	}
	return nil
}

const insertColumns = 11

// buildBatchInsert constructs a multi-row INSERT statement.
func buildBatchInsert(events []Event) (string, []any, error) {
	const cols = "(id, principal_id, role, action, method, path, pattern, request_id, metadata, source, created_at)"
	placeholders := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*insertColumns)

	for i, e := range events {
		slots := make([]string, insertColumns)
		for c := range slots {
			slots[c] = fmt.Sprintf("$%d", i*insertColumns+c+1)
		}
		placeholders = append(placeholders, "("+strings.Join(slots, ", ")+")")

		var metaJSON []byte
		if e.Metadata != nil {
			var err error
			metaJSON, err = json.Marshal(e.Metadata)
			if err != nil {
				return "", nil, fmt.Errorf("marshaling metadata: %w", err)
			}
		}

		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		args = append(args, e.ID, e.PrincipalID, e.Role, e.Action, e.Method, e.Path,
			e.Pattern, e.RequestID, metaJSON, e.Source, createdAt)
	}

	sql := fmt.Sprintf("INSERT INTO authz_events %s VALUES %s", cols, strings.Join(placeholders, ", "))
	return sql, args, nil
}

// ListEventsParams defines filters for querying audit events.
type ListEventsParams struct {
	PrincipalID *string
	Action      *string
	Source      *string
	After       *time.Time
	Before      *time.Time
	Limit       int
}

// buildListQuery constructs a parameterized SELECT for audit events.
func buildListQuery(p ListEventsParams) (string, []any) {
	var conditions []string
	var args []any

	add := func(cond string, v any) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if p.PrincipalID != nil {
		add("principal_id = $%d", *p.PrincipalID)
	}
	if p.Action != nil {
		add("action = $%d", *p.Action)
	}
	if p.Source != nil {
		add("source = $%d", *p.Source)
	}
	if p.After != nil {
		add("created_at > $%d", *p.After)
	}
	if p.Before != nil {
		add("created_at < $%d", *p.Before)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, p.Limit)
	sql := fmt.Sprintf(
		`SELECT id, principal_id, role, action, method, path, pattern, request_id, metadata, source, created_at
		FROM authz_events
		%s
		ORDER BY created_at DESC
		LIMIT $%d`,
		where, len(args),
	)
	return sql, args
}

// ListEvents returns events matching p, newest first.
func (s *Store) ListEvents(ctx context.Context, db database.Querier, p ListEventsParams) ([]Event, error) {
	sql, args := buildListQuery(p)
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e    Event
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.PrincipalID, &e.Role, &e.Action, &e.Method, &e.Path,
			&e.Pattern, &e.RequestID, &meta, &e.Source, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit events: %w", err)
	}
	return events, nil
}
