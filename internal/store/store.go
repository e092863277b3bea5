// Package store persists the logistics records and enforces their status
// rules. Every function takes the database handle explicitly.
package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/erazemk/garrison/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// now returns the timestamp written on mutations. Second precision in UTC
// keeps the stored text sortable.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func utcPtr(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(s)) + "%"
}

// personName holds the joined name columns of a referenced user.
type personName struct {
	first, last, username sql.NullString
}

func (n *personName) dest() []any { return []any{&n.first, &n.last, &n.username} }

func (n *personName) String() string {
	if !n.username.Valid {
		return ""
	}
	u := model.User{FirstName: n.first.String, LastName: n.last.String, Username: n.username.String}
	return u.FullName()
}

// window restricts created_at to an optional [from, to] range.
type window struct {
	From *time.Time
	To   *time.Time
}

func (w window) apply(col string, query string, args []any) (string, []any) {
	if w.From != nil {
		query += ` AND ` + col + ` >= ?`
		args = append(args, w.From.UTC())
	}
	if w.To != nil {
		query += ` AND ` + col + ` <= ?`
		args = append(args, w.To.UTC())
	}
	return query, args
}

func limitClause(query string, args []any, limit int) (string, []any) {
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return query, args
}
