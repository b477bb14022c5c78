package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	alarms "groundstation-safety/internal/alarms/domain"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS notification_journal (
	id TEXT PRIMARY KEY,
	condition TEXT NOT NULL,
	kind TEXT NOT NULL,
	title TEXT NOT NULL,
	message TEXT NOT NULL,
	severity TEXT NOT NULL,
	dismissable BOOLEAN NOT NULL,
	created_at TIMESTAMP NOT NULL,
	dismissed_at TIMESTAMP NULL
)`

// Entry is one journaled notification.
type Entry struct {
	alarms.Notification
	DismissedAt *time.Time `json:"dismissed_at,omitempty"`
}

// Repository persists every notification and its dismissal.
type Repository struct {
	db     *sql.DB
	driver string
	logger *log.Logger
}

// Open connects to the journal database. driver is "pgx" (also "postgres")
// or "sqlite".
func Open(driver, dsn string) (*sql.DB, string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "pgx", "postgres", "postgresql":
		driver = DriverPostgres
	case "sqlite", "sqlite3", "":
		driver = DriverSQLite
	default:
		return nil, "", fmt.Errorf("journal: unsupported driver %q", driver)
	}
	if dsn == "" {
		return nil, "", errors.New("journal: empty dsn")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", err
	}
	return db, driver, nil
}

// NewRepository constructs a repository on an open database.
func NewRepository(db *sql.DB, driver string, logger *log.Logger) (*Repository, error) {
	if db == nil {
		return nil, errors.New("journal: nil db")
	}
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Repository{db: db, driver: driver, logger: logger}, nil
}

// EnsureSchema creates the journal table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("journal: nil db")
	}
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Record inserts a notification. Re-recording an id is ignored.
func (r *Repository) Record(ctx context.Context, n alarms.Notification) error {
	if r == nil || r.db == nil {
		return errors.New("journal: nil db")
	}
	if n.ID == "" {
		return errors.New("journal: notification id required")
	}
	_, err := r.db.ExecContext(ctx, r.rebind(`
INSERT INTO notification_journal (
	id, condition, kind, title, message, severity, dismissable, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`),
		n.ID, n.Condition, string(n.Kind), n.Title, n.Message, string(n.Severity), n.Dismissable, n.CreatedAt.UTC())
	return err
}

// MarkDismissed stores the dismissal time of a notification.
func (r *Repository) MarkDismissed(ctx context.Context, id string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("journal: nil db")
	}
	res, err := r.db.ExecContext(ctx, r.rebind(`
UPDATE notification_journal SET dismissed_at = ?
WHERE id = ? AND dismissed_at IS NULL`), at.UTC(), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return alarms.ErrNotFound
	}
	return nil
}

// List returns notifications raised in [from, to), oldest first.
func (r *Repository) List(ctx context.Context, from, to time.Time, limit int) ([]Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("journal: nil db")
	}
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.QueryContext(ctx, r.rebind(`
SELECT id, condition, kind, title, message, severity, dismissable, created_at, dismissed_at
FROM notification_journal
WHERE created_at >= ? AND created_at < ?
ORDER BY created_at ASC
LIMIT ?`), from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			entry     Entry
			kind      string
			severity  string
			dismissed sql.NullTime
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.Condition,
			&kind,
			&entry.Title,
			&entry.Message,
			&severity,
			&entry.Dismissable,
			&entry.CreatedAt,
			&dismissed,
		); err != nil {
			return nil, err
		}
		entry.Kind = alarms.Kind(kind)
		entry.Severity = alarms.Severity(severity)
		entry.CreatedAt = entry.CreatedAt.UTC()
		if dismissed.Valid {
			at := dismissed.Time.UTC()
			entry.DismissedAt = &at
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Notify records n, logging failures. It lets the journal sit behind the
// engine's notifier fan-out.
func (r *Repository) Notify(ctx context.Context, n alarms.Notification) {
	if err := r.Record(ctx, n); err != nil {
		r.logger.Printf("journal: record %s: %v", n.ID, err)
	}
}

// NotificationDismissed records a dismissal, logging failures.
func (r *Repository) NotificationDismissed(ctx context.Context, n alarms.Notification, at time.Time) {
	if err := r.MarkDismissed(ctx, n.ID, at); err != nil {
		r.logger.Printf("journal: dismiss %s: %v", n.ID, err)
	}
}

func (r *Repository) rebind(query string) string {
	return Rebind(r.driver, query)
}

// Rebind rewrites ? placeholders to $n when driver is Postgres.
func Rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
