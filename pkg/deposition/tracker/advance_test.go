package tracker

import (
	"context"
	"errors"
	"testing"

	dbmocks "github.com/loculus-project/ena-deposition/pkg/db/mocks"
	"github.com/loculus-project/ena-deposition/pkg/deposition"
	"github.com/loculus-project/ena-deposition/pkg/domain"
	loculusmocks "github.com/loculus-project/ena-deposition/pkg/loculus/mocks"
)

func TestAdvance_Backward(t *testing.T) {
	type When struct {
		from domain.SubmissionStatus
		to   domain.SubmissionStatus
	}
	theory := func(when When) func(*testing.T) {
		return func(t *testing.T) {
			ctx := context.Background()
			store := dbmocks.NewStore()
			testee := New(deposition.Env{Store: store}, loculusmocks.NewClient())

			e := domain.IntakeEntry{
				SequenceKey: domain.SequenceKey{Accession: "LOC_0001", Version: 1},
				Organism:    "ebola-zaire",
				GroupID:     7,
				Status:      when.from,
			}
			ok, err := testee.advance(ctx, e, when.to)
			if !errors.Is(err, domain.ErrRegression) {
				t.Errorf("err: actual=%v, expect=%v", err, domain.ErrRegression)
			}
			if ok {
				t.Error("it should not be moved")
			}
			if n := store.IntakeTable.Calls.Update.Times(); n != 0 {
				t.Errorf("intake should not be updated: %d times", n)
			}
			for name, n := range map[string]int{
				"projects":   store.ProjectTable.Calls.Find.Times(),
				"samples":    store.SampleTable.Calls.Find.Times(),
				"assemblies": store.AssemblyTable.Calls.Find.Times(),
			} {
				if n != 0 {
					t.Errorf("%s should not be read: %d times", name, n)
				}
			}
		}
	}

	t.Run("SUBMITTED_SAMPLE does not go back to SUBMITTED_PROJECT", theory(When{
		from: domain.SubmittedSample, to: domain.SubmittedProject,
	}))
	t.Run("SENT_TO_LOCULUS does not go back to SUBMITTED_ALL", theory(When{
		from: domain.SentToLoculus, to: domain.SubmittedAll,
	}))
	t.Run("SUBMITTING_PROJECT does not go back to READY_TO_SUBMIT", theory(When{
		from: domain.SubmittingProject, to: domain.ReadyToSubmit,
	}))
}
