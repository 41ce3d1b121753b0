package db

import (
	"context"
	"fmt"

	"github.com/loculus-project/ena-deposition/pkg/domain"
)

// Table is a conditional-read/conditional-write view of one table.
type Table[R any] interface {
	// Find returns rows matching all conditions, ordered by primary key.
	Find(ctx context.Context, where ...Cond) ([]R, error)

	// Update sets values to rows matching all conditions, and returns the number of affected rows.
	//
	// Zero affected rows is not an error. The caller decides what it means.
	Update(ctx context.Context, where []Cond, set ...Assign) (int64, error)

	// Insert inserts a row.
	//
	// If a row with the same key exists, it returns an error wrapping domain.ErrDuplicate.
	Insert(ctx context.Context, row R) error

	// CountByStatus counts rows per status.
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// Store is the persistent state of the deposition.
type Store interface {
	Intake() Table[domain.IntakeEntry]
	Projects() Table[domain.ProjectEntity]
	Samples() Table[domain.SampleEntity]
	Assemblies() Table[domain.AssemblyEntity]

	Ping(ctx context.Context) error
	Close()
}

// Duplicate is returned by Insert for a key which exists already.
type Duplicate struct {
	Table    string
	Identity string
	Cause    error
}

func (d Duplicate) Error() string {
	return fmt.Sprintf("%s is already in %s: %v", d.Identity, d.Table, d.Cause)
}

func (d Duplicate) Unwrap() []error {
	return []error{domain.ErrDuplicate, d.Cause}
}

// Identity describes the key of a record for messages.
func Identity(r Record) string {
	s := ""
	for i, c := range r.schema.key {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s=%v", c.name, r.Value(c))
	}
	return s
}
