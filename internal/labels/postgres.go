package labels

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// PostgresMirror copies label records into the label_records table so the
// training job can join them against other tables. The CSV partitions stay
// the source of truth.
type PostgresMirror struct {
	DB *sql.DB
}

// OpenPostgresMirror connects with the lib/pq driver and pings the server.
func OpenPostgresMirror(ctx context.Context, dsn string) (*PostgresMirror, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("labels: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("labels: ping postgres: %w", err)
	}
	return &PostgresMirror{DB: db}, nil
}

// Insert stores rec; a hash that is already present is left untouched.
func (m *PostgresMirror) Insert(ctx context.Context, rec Record) error {
	_, err := m.DB.ExecContext(ctx, `
INSERT INTO label_records (content_hash, verdict, labeled_on, created_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (content_hash) DO NOTHING`,
		rec.ContentHash, string(rec.Verdict), rec.Date.UTC().Format(dayLayout))
	return err
}

// Count returns the number of mirrored records per verdict.
func (m *PostgresMirror) Count(ctx context.Context) (map[Verdict]int, error) {
	rows, err := m.DB.QueryContext(ctx, `SELECT verdict, COUNT(*) FROM label_records GROUP BY verdict`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[Verdict]int)
	for rows.Next() {
		var v string
		var n int
		if err := rows.Scan(&v, &n); err != nil {
			return nil, err
		}
		out[Verdict(v)] = n
	}
	return out, rows.Err()
}

func (m *PostgresMirror) Close() error { return m.DB.Close() }

// Migrate applies the label_records migrations found in dir
// (e.g. file://migrations). steps of 0 means all.
func Migrate(dir, dsn, direction string, steps int) error {
	if dir == "" {
		dir = "file://migrations"
	}
	if dsn == "" {
		return errors.New("migrate: postgres dsn is empty")
	}
	m, err := migrate.New(dir, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	switch direction {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	default:
		return fmt.Errorf("unknown direction: %s", direction)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
