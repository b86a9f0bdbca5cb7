package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"iter"

	eventstore "github.com/shogotsuneto/go-es-catchup"
)

// Read pages through the stream in ascending sequence order. No connection
// is held between pages.
func (s *EventStore) Read(ctx context.Context, stream string) iter.Seq2[eventstore.EventRecord, error] {
	return func(yield func(eventstore.EventRecord, error) bool) {
		var after *int64
		for {
			query, args := s.buildReadQuery(stream, after, s.pageSize)
			rows, err := s.db.QueryContext(ctx, query, args...)
			if err != nil {
				yield(eventstore.EventRecord{}, fmt.Errorf("failed to query events: %w", err))
				return
			}
			page, err := scanRecords(rows)
			if err != nil {
				yield(eventstore.EventRecord{}, err)
				return
			}
			for _, record := range page {
				if !yield(record, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			last := page[len(page)-1].Sequence
			after = &last
		}
	}
}

// buildReadQuery builds one page of a stream read. after is the last
// sequence already returned, or nil for the first page.
func (s *EventStore) buildReadQuery(stream string, after *int64, limit int) (string, []any) {
	table := quoteIdentifier(s.tableName)
	if after == nil {
		return fmt.Sprintf(`
		SELECT stream_id, sequence, event_id, event_type, event_data
		FROM %s
		WHERE stream_id = $1
		ORDER BY sequence ASC
		LIMIT $2`, table), []any{stream, limit}
	}
	return fmt.Sprintf(`
		SELECT stream_id, sequence, event_id, event_type, event_data
		FROM %s
		WHERE stream_id = $1 AND sequence > $2
		ORDER BY sequence ASC
		LIMIT $3`, table), []any{stream, *after, limit}
}

// Fetch returns up to limit records of any stream with an ID greater than after.
func (s *EventStore) Fetch(ctx context.Context, after string, limit int) ([]eventstore.EventRecord, error) {
	if limit <= 0 {
		limit = eventstore.DefaultFetchLimit
	}
	query := fmt.Sprintf(`
		SELECT stream_id, sequence, event_id, event_type, event_data
		FROM %s
		WHERE event_id > $1
		ORDER BY event_id ASC
		LIMIT $2
	`, quoteIdentifier(s.tableName))

	rows, err := s.db.QueryContext(ctx, query, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed: %w", err)
	}
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]eventstore.EventRecord, error) {
	defer rows.Close()

	var records []eventstore.EventRecord
	for rows.Next() {
		var r eventstore.EventRecord
		if err := rows.Scan(&r.Stream, &r.Sequence, &r.ID, &r.Type, &r.Data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return records, nil
}
