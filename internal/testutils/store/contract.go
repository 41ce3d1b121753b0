package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loculus-project/ena-deposition/pkg/db"
	"github.com/loculus-project/ena-deposition/pkg/domain"
)

// Contract tests behaviours every db.Store should have.
//
// open should return an empty store, which is cleaned up after the test.
func Contract(t *testing.T, open func(ctx context.Context, t *testing.T) db.Store) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	key := domain.SequenceKey{Accession: "LOC_0001", Version: 2}
	seq := "ACGT"

	entry := domain.IntakeEntry{
		SequenceKey: key,
		Organism:    "cchf",
		GroupID:     7,
		CenterName:  "Some Center",
		Metadata: map[string]any{
			"sampleCollectionDate": "2024-01-02",
			"depthOfCoverage":      12.5,
		},
		UnalignedSequences: map[string]*string{"L": &seq, "M": nil},
		Status:             domain.ReadyToSubmit,
		StartedAt:          now.Add(-2 * time.Hour),
	}

	t.Run("inserted rows are found", func(t *testing.T) {
		ctx := context.Background()
		s := open(ctx, t)

		if err := s.Intake().Insert(ctx, entry); err != nil {
			t.Fatal(err)
		}
		rs, err := s.Intake().Find(ctx, db.Intake.KeyOf(key)...)
		if err != nil {
			t.Fatal(err)
		}
		if len(rs) != 1 {
			t.Fatalf("rows: %+v", rs)
		}
		got := rs[0]
		if got.SequenceKey != key || got.Organism != "cchf" || got.GroupID != 7 || got.CenterName != "Some Center" {
			t.Errorf("key columns: %+v", got)
		}
		if got.Status != domain.ReadyToSubmit || !got.StartedAt.Equal(entry.StartedAt) || got.FinishedAt != nil {
			t.Errorf("status columns: %+v", got)
		}
		if got.Metadata["sampleCollectionDate"] != "2024-01-02" || got.Metadata["depthOfCoverage"] != 12.5 {
			t.Errorf("metadata: %v", got.Metadata)
		}
		if l, ok := got.UnalignedSequences["L"]; !ok || l == nil || *l != seq {
			t.Errorf("sequence L: %v", got.UnalignedSequences)
		}
		if m, ok := got.UnalignedSequences["M"]; !ok || m != nil {
			t.Errorf("sequence M should be null: %v", got.UnalignedSequences)
		}
	})

	t.Run("duplicate key is rejected", func(t *testing.T) {
		ctx := context.Background()
		s := open(ctx, t)

		p := domain.ProjectEntity{ProjectKey: domain.ProjectKey{GroupID: 7, Organism: "cchf"}, Status: domain.Ready}
		if err := s.Projects().Insert(ctx, p); err != nil {
			t.Fatal(err)
		}
		if err := s.Projects().Insert(ctx, p); !errors.Is(err, domain.ErrDuplicate) {
			t.Errorf("expected ErrDuplicate, but %v", err)
		}
	})

	t.Run("update is compare-and-update", func(t *testing.T) {
		ctx := context.Background()
		s := open(ctx, t)

		if err := s.Samples().Insert(ctx, domain.SampleEntity{SequenceKey: key, Status: domain.Ready}); err != nil {
			t.Fatal(err)
		}
		claim := func() int64 {
			n, err := s.Samples().Update(
				ctx,
				append(db.Sample.KeyOf(key), db.Eq(db.Sample.Status, domain.Ready)),
				db.Set(db.Sample.Status, domain.Submitting),
				db.Set(db.Sample.StartedAt, now),
			)
			if err != nil {
				t.Fatal(err)
			}
			return n
		}
		if n := claim(); n != 1 {
			t.Errorf("first claim: %d rows", n)
		}
		if n := claim(); n != 0 {
			t.Errorf("second claim: %d rows", n)
		}

		rs, err := s.Samples().Find(ctx, db.Sample.KeyOf(key)...)
		if err != nil {
			t.Fatal(err)
		}
		if rs[0].Status != domain.Submitting || rs[0].StartedAt == nil || !rs[0].StartedAt.Equal(now) {
			t.Errorf("claimed row: %+v", rs[0])
		}
	})

	t.Run("results and their fields are queried", func(t *testing.T) {
		ctx := context.Background()
		s := open(ctx, t)

		visible := now.Add(-time.Minute)
		for _, p := range []domain.ProjectEntity{
			{
				ProjectKey: domain.ProjectKey{GroupID: 1, Organism: "cchf"},
				Status:     domain.Submitted,
				Result:     &domain.ProjectResult{BioprojectAccession: "PRJEB1", EnaFirstPubliclyVisible: &visible},
			},
			{
				ProjectKey: domain.ProjectKey{GroupID: 2, Organism: "cchf"},
				Status:     domain.Submitted,
				Result:     &domain.ProjectResult{BioprojectAccession: "PRJEB2"},
			},
			{
				ProjectKey: domain.ProjectKey{GroupID: 3, Organism: "cchf"},
				Status:     domain.HasErrors,
				Errors:     []string{"rejected"},
			},
		} {
			if err := s.Projects().Insert(ctx, p); err != nil {
				t.Fatal(err)
			}
		}

		rs, err := s.Projects().Find(ctx, db.Eq(db.Project.Status, domain.Submitted), db.IsNull(db.Project.EnaVisible))
		if err != nil {
			t.Fatal(err)
		}
		if len(rs) != 1 || rs[0].GroupID != 2 || rs[0].Result.BioprojectAccession != "PRJEB2" {
			t.Errorf("unstamped: %+v", rs)
		}

		rs, err = s.Projects().Find(ctx, db.Eq(db.Project.BioprojectAccession, "PRJEB1"))
		if err != nil {
			t.Fatal(err)
		}
		if len(rs) != 1 || rs[0].Result.EnaFirstPubliclyVisible == nil || !rs[0].Result.EnaFirstPubliclyVisible.Equal(visible) {
			t.Errorf("by accession: %+v", rs)
		}

		rs, err = s.Projects().Find(ctx, db.In(db.Project.Status, domain.HasErrors, domain.Ready))
		if err != nil {
			t.Fatal(err)
		}
		if len(rs) != 1 || rs[0].GroupID != 3 || len(rs[0].Errors) != 1 || rs[0].Errors[0] != "rejected" {
			t.Errorf("in: %+v", rs)
		}

		rs, err = s.Projects().Find(ctx, db.In[domain.Status](db.Project.Status))
		if err != nil {
			t.Fatal(err)
		}
		if len(rs) != 0 {
			t.Errorf("empty in: %+v", rs)
		}

		counts, err := s.Projects().CountByStatus(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if counts[string(domain.Submitted)] != 2 || counts[string(domain.HasErrors)] != 1 || len(counts) != 2 {
			t.Errorf("counts: %v", counts)
		}
	})

	t.Run("timestamps are compared", func(t *testing.T) {
		ctx := context.Background()
		s := open(ctx, t)

		for i, age := range []time.Duration{30 * time.Minute, 3 * time.Hour} {
			started := now.Add(-age)
			if err := s.Assemblies().Insert(ctx, domain.AssemblyEntity{
				SequenceKey: domain.SequenceKey{Accession: "LOC_0001", Version: int64(i + 1)},
				Status:      domain.Waiting,
				StartedAt:   &started,
			}); err != nil {
				t.Fatal(err)
			}
		}
		rs, err := s.Assemblies().Find(
			ctx,
			db.Eq(db.Assembly.Status, domain.Waiting),
			db.Before(db.Assembly.StartedAt, now.Add(-time.Hour)),
		)
		if err != nil {
			t.Fatal(err)
		}
		if len(rs) != 1 || rs[0].Version != 2 {
			t.Errorf("stuck: %+v", rs)
		}
	})

	t.Run("columns out of the allow-list are refused", func(t *testing.T) {
		ctx := context.Background()
		s := open(ctx, t)

		// a field in the result is read-only. The result is updated as a whole.
		_, err := s.Projects().Update(
			ctx,
			db.Project.KeyOf(domain.ProjectKey{GroupID: 1, Organism: "cchf"}),
			db.Set(db.Project.EnaVisible, now),
		)
		if !errors.Is(err, db.ErrNotAllowed) {
			t.Errorf("expected ErrNotAllowed, but %v", err)
		}

		_, err = s.Projects().Find(ctx, db.Eq(db.Sample.Status, domain.Ready))
		if !errors.Is(err, db.ErrNotAllowed) {
			t.Errorf("expected ErrNotAllowed, but %v", err)
		}
	})
}
