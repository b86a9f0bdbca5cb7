package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lib/pq"
)

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple table name",
			input:    "events",
			expected: `"events"`,
		},
		{
			name:     "table name with underscores",
			input:    "custom_events",
			expected: `"custom_events"`,
		},
		{
			name:     "table name with spaces",
			input:    "my events",
			expected: `"my events"`,
		},
		{
			name:     "table name with double quotes",
			input:    `table"name`,
			expected: `"table""name"`,
		},
		{
			name:     "empty string",
			input:    "",
			expected: `""`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := quoteIdentifier(tt.input)
			if result != tt.expected {
				t.Errorf("quoteIdentifier(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestEmptyTableName(t *testing.T) {
	ctx := context.Background()

	if err := InitSchema(ctx, nil, ""); !errors.Is(err, errEmptyTableName) {
		t.Errorf("InitSchema: expected %v, got %v", errEmptyTableName, err)
	}
	if err := InitStateSchema(ctx, nil, ""); !errors.Is(err, errEmptyTableName) {
		t.Errorf("InitStateSchema: expected %v, got %v", errEmptyTableName, err)
	}

	store, err := NewEventStore(nil, "")
	if err == nil || store != nil {
		t.Errorf("NewEventStore should reject an empty table name, got %v, %v", store, err)
	}
	if err.Error() != "table name must not be empty" {
		t.Errorf("Unexpected error text %q", err.Error())
	}

	states, err := NewStateStore(nil, "")
	if err == nil || states != nil {
		t.Errorf("NewStateStore should reject an empty table name, got %v, %v", states, err)
	}
}

func TestNewEventStore_Options(t *testing.T) {
	store, err := NewEventStore(nil, "events", WithPageSize(10), WithPageSize(-1), WithLogger(nil))
	if err != nil {
		t.Fatalf("NewEventStore failed: %v", err)
	}
	if store.pageSize != 10 {
		t.Errorf("Expected page size 10, got %d", store.pageSize)
	}
	if store.logger == nil {
		t.Error("Expected a nil logger to be replaced with a no-op logger")
	}
}

func TestBuildReadQuery(t *testing.T) {
	store := &EventStore{tableName: "test_events"}
	after := int64(10)

	tests := []struct {
		name         string
		after        *int64
		expectedSQL  []string
		expectedArgs []any
	}{
		{
			name:         "first page",
			after:        nil,
			expectedSQL:  []string{"WHERE stream_id = $1", "ORDER BY sequence ASC", "LIMIT $2"},
			expectedArgs: []any{"stream-1", 5},
		},
		{
			name:         "next page",
			after:        &after,
			expectedSQL:  []string{"WHERE stream_id = $1 AND sequence > $2", "ORDER BY sequence ASC", "LIMIT $3"},
			expectedArgs: []any{"stream-1", int64(10), 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := store.buildReadQuery("stream-1", tt.after, 5)

			for _, part := range tt.expectedSQL {
				if !strings.Contains(query, part) {
					t.Errorf("Expected query to contain %q, but got: %s", part, query)
				}
			}
			if !strings.Contains(query, `"test_events"`) {
				t.Errorf("Expected query to contain quoted table name, but got: %s", query)
			}
			if len(args) != len(tt.expectedArgs) {
				t.Fatalf("Expected %d arguments, got %d: %v", len(tt.expectedArgs), len(args), args)
			}
			for i, expected := range tt.expectedArgs {
				if args[i] != expected {
					t.Errorf("Argument %d: expected %v, got %v", i, expected, args[i])
				}
			}
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "unique violation", err: &pq.Error{Code: "23505"}, want: true},
		{name: "wrapped unique violation", err: errors.Join(errors.New("insert"), &pq.Error{Code: "23505"}), want: true},
		{name: "other pq error", err: &pq.Error{Code: "23503"}, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
