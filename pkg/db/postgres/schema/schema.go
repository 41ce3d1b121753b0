package schema

import (
	"cmp"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	kpool "github.com/loculus-project/ena-deposition/pkg/db/postgres/pool"
)

//go:embed repository/*.sql
var repository embed.FS

// ErrOutdated is returned by Check when the database is older than this binary expects.
var ErrOutdated = errors.New("database schema is outdated")

// Schema upgrades tables with versioned SQL files.
//
// Each file in the repository is named "NNNN_description.sql"; NNNN is its version.
type Schema struct {
	pool       kpool.Pool
	repository fs.FS
}

// New creates a Schema with the SQL files embedded in this package.
func New(pool kpool.Pool) *Schema {
	sub, _ := fs.Sub(repository, "repository")
	return WithRepository(pool, sub)
}

// WithRepository creates a Schema with SQL files in repo.
func WithRepository(pool kpool.Pool, repo fs.FS) *Schema {
	return &Schema{pool: pool, repository: repo}
}

type version struct {
	Version int
	File    string
}

func (v version) Apply(ctx context.Context, repo fs.FS, conn kpool.Queryer) error {
	query, err := fs.ReadFile(repo, v.File)
	if err != nil {
		return err
	}
	if _, err := conn.Exec(ctx, string(query)); err != nil {
		return fmt.Errorf("schema version %d (%s): %w", v.Version, v.File, err)
	}
	return nil
}

// Version returns the version of the schema in the database. 0 means "no tables".
func (s *Schema) Version(ctx context.Context) (int, error) {
	return currentVersion(ctx, s.pool)
}

func currentVersion(ctx context.Context, conn kpool.Queryer) (int, error) {
	var version *int
	if err := conn.QueryRow(
		ctx, `select max("version") from "schema_version"`,
	).Scan(&version); err != nil {
		if pgerr := new(pgconn.PgError); errors.As(err, &pgerr) {
			if pgerr.Code == pgerrcode.UndefinedTable {
				return 0, nil
			}
		}
		return -1, err
	}
	if version == nil {
		return 0, nil
	}
	return *version, nil
}

// Latest returns the newest version in the repository.
func (s *Schema) Latest() (int, error) {
	vs, err := s.versions()
	if err != nil {
		return -1, err
	}
	if len(vs) == 0 {
		return 0, nil
	}
	return vs[len(vs)-1].Version, nil
}

// Upgrade applies versions newer than the database has, in one transaction.
func (s *Schema) Upgrade(ctx context.Context) error {
	schemaVersions, err := s.versions()
	if err != nil {
		return err
	}

	// read before the transaction: a missing table would abort it.
	current, err := s.Version(ctx)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, v := range schemaVersions {
		if v.Version <= current {
			continue
		}
		if err := v.Apply(ctx, s.repository, tx); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `delete from "schema_version"`); err != nil {
			return err
		}
		if _, err := tx.Exec(
			ctx, `insert into "schema_version" ("version") values ($1)`, v.Version,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Check returns ErrOutdated when the database is older than the repository.
func (s *Schema) Check(ctx context.Context) error {
	latest, err := s.Latest()
	if err != nil {
		return err
	}
	current, err := s.Version(ctx)
	if err != nil {
		return err
	}
	if current < latest {
		return fmt.Errorf("%w: database has version %d, but %d is required", ErrOutdated, current, latest)
	}
	return nil
}

func (s *Schema) versions() ([]version, error) {
	entries, err := fs.ReadDir(s.repository, ".")
	if err != nil {
		return nil, err
	}

	vs := []version{}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		num, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			continue
		}
		v, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		vs = append(vs, version{Version: v, File: e.Name()})
	}
	slices.SortFunc(vs, func(a, b version) int { return cmp.Compare(a.Version, b.Version) })
	return vs, nil
}
