// Package store prepares stores for tests.
package store

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/loculus-project/ena-deposition/pkg/db"
	"github.com/loculus-project/ena-deposition/pkg/db/sqlite"
	"github.com/loculus-project/ena-deposition/pkg/deposition"
	"github.com/loculus-project/ena-deposition/pkg/domain"
)

// SQLite opens a fresh SQLite store in a temporary directory. It is closed on cleanup.
func SQLite(ctx context.Context, t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

// Clock is a fixed clock.
func Clock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

// Logger returns a logger printing into the test log.
func Logger(t *testing.T) *log.Logger {
	l := log.New("test")
	l.SetOutput(writer{t: t})
	l.SetLevel(log.DEBUG)
	return l
}

type writer struct{ t *testing.T }

var _ io.Writer = writer{}

func (w writer) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// Env returns a deposition.Env over s with a fixed clock.
func Env(t *testing.T, s db.Store, now time.Time) deposition.Env {
	return deposition.Env{
		Store:         s,
		Logger:        Logger(t),
		WriteAttempts: 3,
		Clock:         Clock(now),
	}
}

// Entry returns a READY_TO_SUBMIT intake entry of an unsegmented organism.
func Entry(accession string, version int64) domain.IntakeEntry {
	seq := "ACGT"
	return domain.IntakeEntry{
		SequenceKey:        domain.SequenceKey{Accession: accession, Version: version},
		Organism:           "ebola-zaire",
		GroupID:            7,
		CenterName:         "Some Center",
		Metadata:           map[string]any{},
		UnalignedSequences: map[string]*string{"main": &seq},
		Status:             domain.ReadyToSubmit,
		StartedAt:          time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
}
