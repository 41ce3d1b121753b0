package testenv

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v4/pgxpool"
	kpool "github.com/loculus-project/ena-deposition/pkg/db/postgres/pool"
	kpgschema "github.com/loculus-project/ena-deposition/pkg/db/postgres/schema"
)

// EnvDSN names the environment variable holding the DSN of a disposable test database.
const EnvDSN = "ENA_DEPOSITION_TEST_DSN"

type pg struct {
	pool *pgxpool.Pool
}

func (p *pg) GetPool(ctx context.Context, t *testing.T) kpool.Pool {
	t.Cleanup(func() {
		t.Helper()
		ClearTables(ctx, p.pool, t)
	})

	ClearTables(ctx, p.pool, t)
	return kpool.Wrap(p.pool)
}

// PoolBroaker is a interface to get a pool.
type PoolBroaker interface {
	// GetPool returns a pool.
	//
	// Tables are cleaned up before returning and after t.
	GetPool(ctx context.Context, t *testing.T) kpool.Pool
}

// NewPoolBroaker returns a PoolBroaker connected to the database named by $ENA_DEPOSITION_TEST_DSN.
//
// When the variable is not set, t is skipped.
// Schema is upgraded to the latest before returning.
func NewPoolBroaker(ctx context.Context, t *testing.T) PoolBroaker {
	t.Helper()

	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skipf("$%s is not set. skip tests with postgres.", EnvDSN)
	}

	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	if err := kpgschema.New(kpool.Wrap(pool)).Upgrade(ctx); err != nil {
		t.Fatal(err)
	}

	return &pg{pool: pool}
}

func ClearTables(ctx context.Context, p *pgxpool.Pool, t *testing.T) {
	t.Helper()

	for _, command := range []string{
		`truncate "submission_table"`,
		`truncate "project_table"`,
		`truncate "sample_table"`,
		`truncate "assembly_table"`,
	} {
		if _, err := p.Exec(ctx, command); err != nil {
			t.Errorf("fail to clean-up tables.: %v", err)
		}
	}
}
