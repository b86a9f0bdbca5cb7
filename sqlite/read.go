package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"iter"

	eventstore "github.com/shogotsuneto/go-es-catchup"
)

// Read pages through the stream in ascending sequence order. No connection
// is held between pages.
func (s *Store) Read(ctx context.Context, stream string) iter.Seq2[eventstore.EventRecord, error] {
	return func(yield func(eventstore.EventRecord, error) bool) {
		var after *int64
		for {
			page, err := s.readPage(ctx, stream, after)
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

func (s *Store) readPage(ctx context.Context, stream string, after *int64) ([]eventstore.EventRecord, error) {
	var rows *sql.Rows
	var err error
	if after == nil {
		rows, err = s.sqlDB.QueryContext(ctx, `
			SELECT stream_id, sequence, event_id, event_type, event_data
			FROM events
			WHERE stream_id = ?
			ORDER BY sequence ASC
			LIMIT ?
		`, stream, s.pageSize)
	} else {
		rows, err = s.sqlDB.QueryContext(ctx, `
			SELECT stream_id, sequence, event_id, event_type, event_data
			FROM events
			WHERE stream_id = ? AND sequence > ?
			ORDER BY sequence ASC
			LIMIT ?
		`, stream, *after, s.pageSize)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return scanRecords(rows)
}

// Fetch returns up to limit records of any stream with an ID greater than after.
func (s *Store) Fetch(ctx context.Context, after string, limit int) ([]eventstore.EventRecord, error) {
	if limit <= 0 {
		limit = eventstore.DefaultFetchLimit
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT stream_id, sequence, event_id, event_type, event_data
		FROM events
		WHERE event_id > ?
		ORDER BY event_id ASC
		LIMIT ?
	`, after, limit)
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
