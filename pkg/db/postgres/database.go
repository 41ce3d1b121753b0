package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/loculus-project/ena-deposition/pkg/db"
	kpool "github.com/loculus-project/ena-deposition/pkg/db/postgres/pool"
	kpgschema "github.com/loculus-project/ena-deposition/pkg/db/postgres/schema"
	"github.com/loculus-project/ena-deposition/pkg/domain"
)

// Store is a db.Store backed by PostgreSQL.
type Store struct {
	pool       kpool.Pool
	intake     db.Table[domain.IntakeEntry]
	projects   db.Table[domain.ProjectEntity]
	samples    db.Table[domain.SampleEntity]
	assemblies db.Table[domain.AssemblyEntity]
}

var _ db.Store = &Store{}

// New connects to the database at url.
//
// It does not touch the schema. Use Schema().Upgrade to create or upgrade tables.
func New(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	return Attach(kpool.Wrap(pool)), nil
}

// Attach builds a Store over an existing pool.
func Attach(p kpool.Pool) *Store {
	return &Store{
		pool:       p,
		intake:     newTable(p, db.IntakeCodec),
		projects:   newTable(p, db.ProjectCodec),
		samples:    newTable(p, db.SampleCodec),
		assemblies: newTable(p, db.AssemblyCodec),
	}
}

func (s *Store) Intake() db.Table[domain.IntakeEntry]        { return s.intake }
func (s *Store) Projects() db.Table[domain.ProjectEntity]    { return s.projects }
func (s *Store) Samples() db.Table[domain.SampleEntity]      { return s.samples }
func (s *Store) Assemblies() db.Table[domain.AssemblyEntity] { return s.assemblies }

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

// Schema returns the schema upgrader of this database.
func (s *Store) Schema() *kpgschema.Schema {
	return kpgschema.New(s.pool)
}
