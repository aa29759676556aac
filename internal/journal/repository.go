// Package journal records issued printer commands and safety rejections
// in SQLite for post-incident review.
//
// Recording is best effort: callers log journal failures and carry on. A
// full disk must never stop a motion command.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry categories.
const (
	CategoryMotion  = "motion"
	CategoryThermal = "thermal"
	CategorySystem  = "system"
)

// Entry outcomes, matching what the drivers report.
const (
	OutcomeSent     = "sent"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// List pagination bounds.
const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Entry is a single journalled command.
type Entry struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Command   string    `json:"command"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	Err       string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter controls which journal entries to return.
type Filter struct {
	Category string    // optional: motion, thermal or system
	Outcome  string    // optional: sent, rejected or failed
	Since    time.Time // optional: entries at or after this instant
	Until    time.Time // optional: entries at or before this instant
	Limit    int       // default 50, max 200
	Offset   int       // pagination offset
}

// ListResult contains the paginated journal results.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the interface for journal operations.
type Repository interface {
	Record(ctx context.Context, entry Entry) (string, error)
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores journal entries in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new journal repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts a journal entry and returns its ID. The ID and CreatedAt
// are generated when empty.
func (r *SQLiteRepository) Record(ctx context.Context, entry Entry) (string, error) {
	if entry.ID == "" {
		entry.ID = "cmd-" + uuid.NewString()[:8]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_journal (id, category, command, outcome, detail, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Category, entry.Command, entry.Outcome,
		nullableString(entry.Detail), nullableString(entry.Err),
		entry.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("inserting journal entry: %w", err)
	}

	return entry.ID, nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns journal entries matching the filter, newest first.
// Entries stored within the same second keep insertion order.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	// Build WHERE clause dynamically. Timestamps are stored as UTC
	// RFC3339, so string comparison matches time order.
	var conditions []string
	var args []any

	if filter.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, filter.Outcome)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}
	if !filter.Until.IsZero() {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, filter.Until.UTC().Format(time.RFC3339))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Get total count.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM command_journal %s", where)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting journal entries: %w", err)
	}

	// Get paginated results. rowid breaks ties between entries stored
	// within the same second.
	query := fmt.Sprintf(
		"SELECT id, category, command, outcome, detail, error, created_at FROM command_journal %s ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var detail, errText sql.NullString
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.Category, &entry.Command,
			&entry.Outcome, &detail, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}

		if detail.Valid {
			entry.Detail = detail.String
		}
		if errText.Valid {
			entry.Err = errText.String
		}

		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing journal timestamp %q: %w", createdAt, err)
		}
		entry.CreatedAt = t

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal entries: %w", err)
	}

	if entries == nil {
		entries = []Entry{}
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
