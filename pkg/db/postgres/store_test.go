package postgres_test

import (
	"context"
	"testing"

	"github.com/loculus-project/ena-deposition/internal/testutils/store"
	"github.com/loculus-project/ena-deposition/pkg/db"
	"github.com/loculus-project/ena-deposition/pkg/db/postgres"
	"github.com/loculus-project/ena-deposition/pkg/db/postgres/pool/testenv"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	broaker := testenv.NewPoolBroaker(ctx, t)

	store.Contract(t, func(ctx context.Context, t *testing.T) db.Store {
		return postgres.Attach(broaker.GetPool(ctx, t))
	})
}

func TestSchema(t *testing.T) {
	ctx := context.Background()
	pool := testenv.NewPoolBroaker(ctx, t).GetPool(ctx, t)
	s := postgres.Attach(pool).Schema()

	latest, err := s.Latest()
	if err != nil {
		t.Fatal(err)
	}
	current, err := s.Version(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if current != latest {
		t.Errorf("version: current=%d, latest=%d", current, latest)
	}

	// upgrading the latest is no-op.
	if err := s.Upgrade(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Check(ctx); err != nil {
		t.Errorf("check: %v", err)
	}
}
