// Package sqlite provides a db.Store backed by a SQLite file, for single-node deployments and tests.
//
// Timestamps are stored as fixed-width UTC text, so that they compare in lexical order.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loculus-project/ena-deposition/pkg/db"
	"github.com/loculus-project/ena-deposition/pkg/domain"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var ddl string

// TimeLayout is the text layout of timestamps.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

type dialect struct{}

var _ db.Dialect = dialect{}

func (dialect) Placeholder(int) string {
	return "?"
}

func (dialect) Field(column, key string) string {
	return fmt.Sprintf("json_extract(%s, '$.%s')", db.Ident(column), key)
}

func (dialect) Arg(_ db.Column, v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(TimeLayout)
	}
	return v
}

// Store is a db.Store backed by SQLite.
type Store struct {
	conn       *sql.DB
	intake     db.Table[domain.IntakeEntry]
	projects   db.Table[domain.ProjectEntity]
	samples    db.Table[domain.SampleEntity]
	assemblies db.Table[domain.AssemblyEntity]
}

var _ db.Store = &Store{}

// Open opens (and creates, if needed) the database file at path, and creates tables.
//
// path may be ":memory:".
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time. It also keeps ":memory:" to a single database.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	for _, stmt := range strings.Split(ddl, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("execute ddl: %w", err)
		}
	}

	return &Store{
		conn:       conn,
		intake:     &table[domain.IntakeEntry]{conn: conn, codec: db.IntakeCodec},
		projects:   &table[domain.ProjectEntity]{conn: conn, codec: db.ProjectCodec},
		samples:    &table[domain.SampleEntity]{conn: conn, codec: db.SampleCodec},
		assemblies: &table[domain.AssemblyEntity]{conn: conn, codec: db.AssemblyCodec},
	}, nil
}

func (s *Store) Intake() db.Table[domain.IntakeEntry]        { return s.intake }
func (s *Store) Projects() db.Table[domain.ProjectEntity]    { return s.projects }
func (s *Store) Samples() db.Table[domain.SampleEntity]      { return s.samples }
func (s *Store) Assemblies() db.Table[domain.AssemblyEntity] { return s.assemblies }

func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *Store) Close() {
	s.conn.Close()
}

type table[R any] struct {
	conn  *sql.DB
	codec db.Codec[R]
}

func holder(c db.Column) any {
	if c.Kind() == db.Int {
		return &sql.NullInt64{}
	}
	return &sql.NullString{}
}

func neutral(c db.Column, h any) (any, error) {
	switch v := h.(type) {
	case *sql.NullInt64:
		if v.Valid {
			return v.Int64, nil
		}
	case *sql.NullString:
		if !v.Valid {
			return nil, nil
		}
		if c.Kind() == db.Timestamp {
			t, err := time.Parse(TimeLayout, v.String)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", c, err)
			}
			return t, nil
		}
		return v.String, nil
	}
	return nil, nil
}

func (t *table[R]) Find(ctx context.Context, where ...db.Cond) ([]R, error) {
	schema := t.codec.Schema
	query, args, err := db.SelectSQL(dialect{}, schema, where)
	if err != nil {
		return nil, err
	}
	rows, err := t.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := schema.Columns()
	result := []R{}
	for rows.Next() {
		holders := make([]any, len(cols))
		for i, c := range cols {
			holders[i] = holder(c)
		}
		if err := rows.Scan(holders...); err != nil {
			return nil, err
		}
		rec := db.NewRecord(schema)
		for i, c := range cols {
			v, err := neutral(c, holders[i])
			if err != nil {
				return nil, err
			}
			rec.Put(c, v)
		}
		r, err := t.codec.Decode(rec)
		if err != nil {
			return nil, fmt.Errorf("%s (%s): %w", schema.Name(), db.Identity(rec), err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (t *table[R]) Update(ctx context.Context, where []db.Cond, set ...db.Assign) (int64, error) {
	query, args, err := db.UpdateSQL(dialect{}, t.codec.Schema, where, set)
	if err != nil {
		return 0, err
	}
	res, err := t.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *table[R]) Insert(ctx context.Context, row R) error {
	rec, err := t.codec.Encode(row)
	if err != nil {
		return err
	}
	query, args, err := db.InsertSQL(dialect{}, t.codec.Schema, rec)
	if err != nil {
		return err
	}
	if _, err := t.conn.ExecContext(ctx, query, args...); err != nil {
		var serr *sqlite.Error
		if errors.As(err, &serr) {
			switch serr.Code() {
			case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
				return db.Duplicate{
					Table:    t.codec.Schema.Name(),
					Identity: db.Identity(rec),
					Cause:    err,
				}
			}
		}
		return err
	}
	return nil
}

func (t *table[R]) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := t.conn.QueryContext(ctx, db.CountByStatusSQL(t.codec.Schema))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
