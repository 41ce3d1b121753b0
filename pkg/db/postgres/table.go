package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/loculus-project/ena-deposition/pkg/db"
	kpool "github.com/loculus-project/ena-deposition/pkg/db/postgres/pool"
)

type dialect struct{}

var _ db.Dialect = dialect{}

func (dialect) Placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func (dialect) Field(column, key string) string {
	return fmt.Sprintf("(%s->>'%s')", db.Ident(column), key)
}

func (dialect) Arg(_ db.Column, v any) any {
	return v
}

// a table in postgres, implements db.Table[R]
type table[R any] struct {
	pool  kpool.Pool
	codec db.Codec[R]
}

func newTable[R any](pool kpool.Pool, codec db.Codec[R]) *table[R] {
	return &table[R]{pool: pool, codec: codec}
}

func holder(c db.Column) any {
	switch c.Kind() {
	case db.Int:
		return &pgtype.Int8{}
	case db.JSON:
		return &pgtype.JSONB{}
	case db.Timestamp:
		return &pgtype.Timestamptz{}
	default:
		return &pgtype.Text{}
	}
}

func neutral(h any) any {
	switch v := h.(type) {
	case *pgtype.Text:
		if v.Status == pgtype.Present {
			return v.String
		}
	case *pgtype.Int8:
		if v.Status == pgtype.Present {
			return v.Int
		}
	case *pgtype.JSONB:
		if v.Status == pgtype.Present {
			return v.Bytes
		}
	case *pgtype.Timestamptz:
		if v.Status == pgtype.Present {
			return v.Time.UTC()
		}
	}
	return nil
}

func (t *table[R]) Find(ctx context.Context, where ...db.Cond) ([]R, error) {
	schema := t.codec.Schema
	query, args, err := db.SelectSQL(dialect{}, schema, where)
	if err != nil {
		return nil, err
	}

	rows, err := t.pool.Query(ctx, query, args...)
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
			rec.Put(c, neutral(holders[i]))
		}
		r, err := t.codec.Decode(rec)
		if err != nil {
			return nil, fmt.Errorf("%s (%s): %w", schema.Name(), db.Identity(rec), err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (t *table[R]) Update(ctx context.Context, where []db.Cond, set ...db.Assign) (int64, error) {
	query, args, err := db.UpdateSQL(dialect{}, t.codec.Schema, where, set)
	if err != nil {
		return 0, err
	}
	cmd, err := t.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
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
	if _, err := t.pool.Exec(ctx, query, args...); err != nil {
		if pgerr := new(pgconn.PgError); errors.As(err, &pgerr) && pgerr.Code == pgerrcode.UniqueViolation {
			return db.Duplicate{
				Table:    t.codec.Schema.Name(),
				Identity: db.Identity(rec),
				Cause:    err,
			}
		}
		return err
	}
	return nil
}

func (t *table[R]) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := t.pool.Query(ctx, db.CountByStatusSQL(t.codec.Schema))
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
