package cookies

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

const cookieSchema = `
CREATE TABLE IF NOT EXISTS cookies (
	name        TEXT NOT NULL,
	domain_key  TEXT NOT NULL,
	path        TEXT NOT NULL,
	domain      TEXT NOT NULL,
	value       TEXT NOT NULL,
	host_only   INTEGER NOT NULL DEFAULT 0,
	secure      INTEGER NOT NULL DEFAULT 0,
	http_only   INTEGER NOT NULL DEFAULT 0,
	same_site   TEXT NOT NULL DEFAULT 'unspecified',
	expires     INTEGER,
	session     INTEGER NOT NULL DEFAULT 1,
	created     INTEGER NOT NULL,
	last_access INTEGER NOT NULL,
	PRIMARY KEY (name, domain_key, path)
)`

// SQLiteJar is a Jar persisted to a SQLite database file. Reads are served
// from memory; every change, and the access time of listed cookies, is
// written through in a transaction. A failed write leaves memory as it was.
type SQLiteJar struct {
	mu  sync.Mutex
	db  *sql.DB
	mem *MemoryJar
}

var _ Jar = (*SQLiteJar)(nil)

// OpenSQLiteJar opens (or creates) a cookie database at path
func OpenSQLiteJar(ctx context.Context, path string, opts ...JarOption) (*SQLiteJar, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie store: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to cookie store: %w", err)
	}

	if _, err := db.ExecContext(ctx, cookieSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create cookie schema: %w", err)
	}

	j := &SQLiteJar{db: db, mem: NewMemoryJar(opts...)}
	if err := j.loadAll(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the database connection
func (j *SQLiteJar) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Cookies returns a copy of every stored cookie
func (j *SQLiteJar) Cookies() []*Cookie {
	return j.mem.Cookies()
}

func (j *SQLiteJar) SetCookies(ctx context.Context, rawURL string, cookies []*Cookie) ([]Change, error) {
	return j.writeThrough(ctx, func() ([]Change, []*Cookie, error) {
		changes, err := j.mem.set(rawURL, cookies)
		return changes, nil, err
	})
}

func (j *SQLiteJar) ListCookies(ctx context.Context, rawURL string) ([]*Cookie, error) {
	var list []*Cookie
	_, err := j.writeThrough(ctx, func() ([]Change, []*Cookie, error) {
		matched, purged, err := j.mem.list(rawURL)
		list = matched
		return purged, matched, err
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (j *SQLiteJar) DeleteCookies(ctx context.Context, rawURL, name string) ([]Change, error) {
	return j.writeThrough(ctx, func() ([]Change, []*Cookie, error) {
		changes, err := j.mem.delete(rawURL, name)
		return changes, nil, err
	})
}

// writeThrough applies op to memory and persists its changes and touched
// cookies. Memory is restored when persisting fails. Listeners only hear
// about committed changes.
func (j *SQLiteJar) writeThrough(ctx context.Context, op func() ([]Change, []*Cookie, error)) ([]Change, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	before := j.mem.snapshot()
	changes, touched, err := op()
	if err != nil {
		return nil, err
	}
	if err := j.persist(ctx, changes, touched); err != nil {
		j.mem.restore(before)
		return nil, err
	}
	j.mem.notify(changes)
	return changes, nil
}

func (j *SQLiteJar) loadAll(ctx context.Context) error {
	rows, err := j.db.QueryContext(ctx, `SELECT name, domain, path, value, host_only, secure, http_only,
		same_site, expires, session, created, last_access FROM cookies`)
	if err != nil {
		return fmt.Errorf("failed to read cookies: %w", err)
	}
	defer rows.Close()

	var loaded []*Cookie
	for rows.Next() {
		var (
			c                   Cookie
			sameSite            string
			expires             sql.NullInt64
			created, lastAccess int64
		)
		if err := rows.Scan(&c.Name, &c.Domain, &c.Path, &c.Value, &c.HostOnly, &c.Secure, &c.HTTPOnly,
			&sameSite, &expires, &c.Session, &created, &lastAccess); err != nil {
			return fmt.Errorf("failed to scan cookie: %w", err)
		}
		c.SameSite = SameSite(sameSite)
		if expires.Valid {
			t := time.UnixMilli(expires.Int64).UTC()
			c.ExpirationDate = &t
		}
		c.Created = time.UnixMilli(created)
		c.LastAccess = time.UnixMilli(lastAccess)
		loaded = append(loaded, &c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}

	j.mem.load(loaded)
	return nil
}

func (j *SQLiteJar) persist(ctx context.Context, changes []Change, touched []*Cookie) error {
	if len(changes) == 0 && len(touched) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cookie transaction: %w", err)
	}

	for _, ch := range changes {
		c := ch.Cookie
		if _, err := tx.ExecContext(ctx, `DELETE FROM cookies WHERE name = ? AND domain_key = ? AND path = ?`,
			c.Name, normalizeDomain(c.Domain), c.Path); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to delete cookie %s: %w", c.Name, err)
		}
		if ch.Removed {
			continue
		}

		var expires any
		if c.ExpirationDate != nil {
			expires = c.ExpirationDate.UnixMilli()
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO cookies (name, domain_key, path, domain, value, host_only,
			secure, http_only, same_site, expires, session, created, last_access)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.Name, normalizeDomain(c.Domain), c.Path, c.Domain, c.Value, c.HostOnly,
			c.Secure, c.HTTPOnly, string(c.SameSite), expires, c.Session,
			c.Created.UnixMilli(), c.LastAccess.UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to store cookie %s: %w", c.Name, err)
		}
	}

	for _, c := range touched {
		if _, err := tx.ExecContext(ctx, `UPDATE cookies SET last_access = ? WHERE name = ? AND domain_key = ? AND path = ?`,
			c.LastAccess.UnixMilli(), c.Name, normalizeDomain(c.Domain), c.Path); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update cookie %s: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cookies: %w", err)
	}
	return nil
}
