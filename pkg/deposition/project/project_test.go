package project_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/loculus-project/ena-deposition/internal/testutils/store"
	"github.com/loculus-project/ena-deposition/pkg/db"
	dbmocks "github.com/loculus-project/ena-deposition/pkg/db/mocks"
	"github.com/loculus-project/ena-deposition/pkg/deposition"
	"github.com/loculus-project/ena-deposition/pkg/deposition/project"
	"github.com/loculus-project/ena-deposition/pkg/domain"
	"github.com/loculus-project/ena-deposition/pkg/ena"
	enamocks "github.com/loculus-project/ena-deposition/pkg/ena/mocks"
)

var organisms = map[string]deposition.Organism{
	"ebola-zaire": {
		ScientificName: "Zaire ebolavirus",
		TaxonID:        186538,
		MoleculeType:   "genomic RNA",
		Topology:       "linear",
		Segments:       []string{"main"},
	},
}

var now = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func TestSweep(t *testing.T) {
	type When struct {
		organism string
		submit   func(ena.Document) (*ena.Receipt, error)
	}
	type Then struct {
		moved  int
		err    error
		status domain.Status
		result *domain.ProjectResult
		errors []string

		// archive should be called
		submitted bool
	}

	key := domain.ProjectKey{GroupID: 7, Organism: "ebola-zaire"}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			ctx := context.Background()
			s := store.SQLite(ctx, t)
			if err := s.Projects().Insert(ctx, domain.ProjectEntity{
				ProjectKey: domain.ProjectKey{GroupID: key.GroupID, Organism: when.organism},
				CenterName: "Some Center",
				Status:     domain.Ready,
			}); err != nil {
				t.Fatal(err)
			}

			client := enamocks.NewClient()
			client.Impl.Submit = func(_ context.Context, doc ena.Document) (*ena.Receipt, error) {
				return when.submit(doc)
			}

			testee := project.New(store.Env(t, s, now), client, organisms, "https://example.org")
			rows, moved, err := testee.Sweep(ctx)

			if rows != 1 {
				t.Errorf("rows: actual=%d, expect=1", rows)
			}
			if moved != then.moved {
				t.Errorf("moved: actual=%d, expect=%d", moved, then.moved)
			}
			if then.err == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			} else if !errors.Is(err, then.err) {
				t.Errorf("err: actual=%v, expect=%v", err, then.err)
			}

			if got := len(client.Calls.Submit) != 0; got != then.submitted {
				t.Errorf("submitted: actual=%v, expect=%v", got, then.submitted)
			} else if got {
				doc := client.Calls.Submit[0]
				if doc.Kind != "PROJECT" {
					t.Errorf("document kind: %s", doc.Kind)
				}
				if !strings.Contains(string(doc.Body), `alias="7:ebola-zaire"`) {
					t.Errorf("document has no alias: %s", doc.Body)
				}
				if !strings.Contains(string(doc.Body), "<TAXON_ID>186538</TAXON_ID>") {
					t.Errorf("document has no taxon: %s", doc.Body)
				}
			}

			rs, err := s.Projects().Find(ctx, db.Eq(db.Project.GroupID, key.GroupID))
			if err != nil {
				t.Fatal(err)
			}
			if len(rs) != 1 {
				t.Fatalf("rows in store: %+v", rs)
			}
			got := rs[0]
			if got.Status != then.status {
				t.Errorf("status: actual=%s, expect=%s", got.Status, then.status)
			}
			if then.result == nil {
				if got.Result != nil {
					t.Errorf("result: actual=%+v, expect=nil", got.Result)
				}
			} else if got.Result == nil || *got.Result != *then.result {
				t.Errorf("result: actual=%+v, expect=%+v", got.Result, then.result)
			}
			if strings.Join(got.Errors, "|") != strings.Join(then.errors, "|") {
				t.Errorf("errors: actual=%v, expect=%v", got.Errors, then.errors)
			}

			switch then.status {
			case domain.Submitted, domain.HasErrors:
				if got.StartedAt == nil || !got.StartedAt.Equal(now) {
					t.Errorf("started_at: %v", got.StartedAt)
				}
				if got.FinishedAt == nil || !got.FinishedAt.Equal(now) {
					t.Errorf("finished_at: %v", got.FinishedAt)
				}
			case domain.Ready:
				if got.StartedAt != nil {
					t.Errorf("started_at is not released: %v", got.StartedAt)
				}
			}
		}
	}

	t.Run("when the archive accepts the project, it becomes SUBMITTED with accessions", theory(
		When{
			organism: "ebola-zaire",
			submit: func(ena.Document) (*ena.Receipt, error) {
				return &ena.Receipt{
					Success:    true,
					Projects:   []ena.Accessioned{{Accession: "PRJEB20767", Alias: "7:ebola-zaire"}},
					Submission: &ena.Accessioned{Accession: "ERA912529"},
				}, nil
			},
		},
		Then{
			moved: 1, status: domain.Submitted, submitted: true,
			result: &domain.ProjectResult{
				BioprojectAccession: "PRJEB20767", EnaSubmissionAccession: "ERA912529",
			},
		},
	))

	t.Run("when the archive rejects the project, it becomes HAS_ERRORS with messages", theory(
		When{
			organism: "ebola-zaire",
			submit: func(ena.Document) (*ena.Receipt, error) {
				return nil, ena.Rejection{Messages: []string{"alias already exists"}}
			},
		},
		Then{
			moved: 1, status: domain.HasErrors, submitted: true,
			errors: []string{"alias already exists"},
		},
	))

	t.Run("when the receipt has no project accession, it becomes HAS_ERRORS", theory(
		When{
			organism: "ebola-zaire",
			submit: func(ena.Document) (*ena.Receipt, error) {
				return &ena.Receipt{
					Success:    true,
					Submission: &ena.Accessioned{Accession: "ERA912529"},
				}, nil
			},
		},
		Then{
			moved: 1, status: domain.HasErrors, submitted: true,
			errors: []string{"malformed archive response: no PROJECT accession in receipt"},
		},
	))

	t.Run("when the archive is unavailable, the sweep is aborted and the row is released", theory(
		When{
			organism: "ebola-zaire",
			submit: func(ena.Document) (*ena.Receipt, error) {
				return nil, ena.ErrUnavailable
			},
		},
		Then{
			moved: 1, status: domain.Ready, submitted: true,
			err: ena.ErrUnavailable,
		},
	))

	t.Run("when the organism is not configured, it becomes HAS_ERRORS without calling the archive", theory(
		When{organism: "unknown-virus"},
		Then{
			moved: 1, status: domain.HasErrors, submitted: false,
			errors: []string{`organism "unknown-virus" is not configured`},
		},
	))
}

func TestSweep_LostRace(t *testing.T) {
	ctx := context.Background()
	s := dbmocks.NewStore()
	s.ProjectTable.Impl.Find = func(context.Context, ...db.Cond) ([]domain.ProjectEntity, error) {
		return []domain.ProjectEntity{
			{ProjectKey: domain.ProjectKey{GroupID: 7, Organism: "ebola-zaire"}, Status: domain.Ready},
		}, nil
	}
	s.ProjectTable.Impl.Update = func(context.Context, []db.Cond, ...db.Assign) (int64, error) {
		return 0, nil
	}
	// Impl.Submit is nil: calling the archive panics.
	client := enamocks.NewClient()

	testee := project.New(store.Env(t, s, now), client, organisms, "")
	rows, moved, err := testee.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rows != 1 || moved != 0 {
		t.Errorf("(rows, moved): actual=(%d, %d), expect=(1, 0)", rows, moved)
	}
	if s.ProjectTable.Calls.Update.Times() != 1 {
		t.Errorf("claim should be tried once: %d", s.ProjectTable.Calls.Update.Times())
	}
}

func TestSweep_PersistIsRetried(t *testing.T) {
	ctx := context.Background()
	s := dbmocks.NewStore()
	s.ProjectTable.Impl.Find = func(context.Context, ...db.Cond) ([]domain.ProjectEntity, error) {
		return []domain.ProjectEntity{
			{ProjectKey: domain.ProjectKey{GroupID: 7, Organism: "ebola-zaire"}, Status: domain.Ready},
		}, nil
	}
	s.ProjectTable.Impl.Update = func(_ context.Context, _ []db.Cond, set ...db.Assign) (int64, error) {
		switch len(s.ProjectTable.Calls.Update) {
		case 1: // claim
			return 1, nil
		case 2, 3:
			return 0, errors.New("connection reset")
		}
		return 1, nil
	}
	client := enamocks.NewClient()
	client.Impl.Submit = func(context.Context, ena.Document) (*ena.Receipt, error) {
		return &ena.Receipt{
			Success:    true,
			Projects:   []ena.Accessioned{{Accession: "PRJEB1"}},
			Submission: &ena.Accessioned{Accession: "ERA1"},
		}, nil
	}

	env := store.Env(t, s, now)
	env.WriteAttempts = 3
	testee := project.New(env, client, organisms, "")

	if _, moved, err := testee.Sweep(ctx); err != nil || moved != 1 {
		t.Fatalf("(moved, err): actual=(%d, %v)", moved, err)
	}
	if got := s.ProjectTable.Calls.Update.Times(); got != 4 {
		t.Errorf("updates: actual=%d, expect=4 (claim + 3 attempts)", got)
	}

	last := s.ProjectTable.Calls.Update[3]
	if last.Set[0].Value != domain.Submitted {
		t.Errorf("last update sets: %+v", last.Set)
	}
	if w := last.Where[len(last.Where)-1]; w.Values[0] != domain.Submitting {
		t.Errorf("last update should expect SUBMITTING: %+v", last.Where)
	}
}

func TestSweep_PersistGivesUp(t *testing.T) {
	ctx := context.Background()
	s := dbmocks.NewStore()
	s.ProjectTable.Impl.Find = func(context.Context, ...db.Cond) ([]domain.ProjectEntity, error) {
		return []domain.ProjectEntity{
			{ProjectKey: domain.ProjectKey{GroupID: 7, Organism: "ebola-zaire"}, Status: domain.Ready},
		}, nil
	}
	cause := errors.New("connection reset")
	s.ProjectTable.Impl.Update = func(context.Context, []db.Cond, ...db.Assign) (int64, error) {
		if len(s.ProjectTable.Calls.Update) == 1 {
			return 1, nil
		}
		return 0, cause
	}
	client := enamocks.NewClient()
	client.Impl.Submit = func(context.Context, ena.Document) (*ena.Receipt, error) {
		return nil, ena.Rejection{Messages: []string{"invalid"}}
	}

	env := store.Env(t, s, now)
	env.WriteAttempts = 2
	testee := project.New(env, client, organisms, "")

	_, _, err := testee.Sweep(ctx)
	if !errors.Is(err, cause) {
		t.Errorf("err: actual=%v, expect=%v", err, cause)
	}
	if got := s.ProjectTable.Calls.Update.Times(); got != 3 {
		t.Errorf("updates: actual=%d, expect=3 (claim + 2 attempts)", got)
	}
}

func TestSweep_PersistFindsEarlierAttemptCommitted(t *testing.T) {
	ctx := context.Background()
	s := dbmocks.NewStore()
	pk := domain.ProjectKey{GroupID: 7, Organism: "ebola-zaire"}
	s.ProjectTable.Impl.Find = func(_ context.Context, where ...db.Cond) ([]domain.ProjectEntity, error) {
		if len(s.ProjectTable.Calls.Find) == 1 {
			return []domain.ProjectEntity{{ProjectKey: pk, Status: domain.Ready}}, nil
		}
		// the write which has reported an error has been committed.
		return []domain.ProjectEntity{{ProjectKey: pk, Status: domain.Submitted}}, nil
	}
	s.ProjectTable.Impl.Update = func(context.Context, []db.Cond, ...db.Assign) (int64, error) {
		switch len(s.ProjectTable.Calls.Update) {
		case 1: // claim
			return 1, nil
		case 2:
			return 0, errors.New("connection reset")
		}
		return 0, nil
	}
	client := enamocks.NewClient()
	client.Impl.Submit = func(context.Context, ena.Document) (*ena.Receipt, error) {
		return &ena.Receipt{
			Success:    true,
			Projects:   []ena.Accessioned{{Accession: "PRJEB1"}},
			Submission: &ena.Accessioned{Accession: "ERA1"},
		}, nil
	}

	env := store.Env(t, s, now)
	env.WriteAttempts = 3
	testee := project.New(env, client, organisms, "")

	if _, moved, err := testee.Sweep(ctx); err != nil || moved != 1 {
		t.Fatalf("(moved, err): actual=(%d, %v)", moved, err)
	}
	if got := s.ProjectTable.Calls.Update.Times(); got != 3 {
		t.Errorf("updates: actual=%d, expect=3 (claim + 2 attempts)", got)
	}
	if got := s.ProjectTable.Calls.Find.Times(); got != 2 {
		t.Fatalf("finds: actual=%d, expect=2", got)
	}
	where := s.ProjectTable.Calls.Find[1]
	if w := where[len(where)-1]; w.Column != db.Project.Status || w.Values[0] != domain.Submitted {
		t.Errorf("the row should be read at SUBMITTED: %+v", where)
	}
}
