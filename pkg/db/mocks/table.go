package mocks

import (
	"context"
	"errors"

	"github.com/loculus-project/ena-deposition/pkg/db"
	"github.com/loculus-project/ena-deposition/pkg/domain"
)

type CallLog[T any] []T

func (cl CallLog[T]) Times() int {
	return len(cl)
}

type UpdateCall struct {
	Where []db.Cond
	Set   []db.Assign
}

type Table[R any] struct {
	Impl struct {
		Find          func(ctx context.Context, where ...db.Cond) ([]R, error)
		Update        func(ctx context.Context, where []db.Cond, set ...db.Assign) (int64, error)
		Insert        func(ctx context.Context, row R) error
		CountByStatus func(ctx context.Context) (map[string]int64, error)
	}
	Calls struct {
		Find          CallLog[[]db.Cond]
		Update        CallLog[UpdateCall]
		Insert        CallLog[R]
		CountByStatus CallLog[struct{}]
	}
}

func NewTable[R any]() *Table[R] {
	return &Table[R]{}
}

var _ db.Table[domain.IntakeEntry] = &Table[domain.IntakeEntry]{}

func (m *Table[R]) Find(ctx context.Context, where ...db.Cond) ([]R, error) {
	m.Calls.Find = append(m.Calls.Find, where)
	if m.Impl.Find != nil {
		return m.Impl.Find(ctx, where...)
	}
	panic(errors.New("it should not be called"))
}

func (m *Table[R]) Update(ctx context.Context, where []db.Cond, set ...db.Assign) (int64, error) {
	m.Calls.Update = append(m.Calls.Update, UpdateCall{Where: where, Set: set})
	if m.Impl.Update != nil {
		return m.Impl.Update(ctx, where, set...)
	}
	panic(errors.New("it should not be called"))
}

func (m *Table[R]) Insert(ctx context.Context, row R) error {
	m.Calls.Insert = append(m.Calls.Insert, row)
	if m.Impl.Insert != nil {
		return m.Impl.Insert(ctx, row)
	}
	panic(errors.New("it should not be called"))
}

func (m *Table[R]) CountByStatus(ctx context.Context) (map[string]int64, error) {
	m.Calls.CountByStatus = append(m.Calls.CountByStatus, struct{}{})
	if m.Impl.CountByStatus != nil {
		return m.Impl.CountByStatus(ctx)
	}
	panic(errors.New("it should not be called"))
}

// Store bundles mock tables as a db.Store.
type Store struct {
	IntakeTable   *Table[domain.IntakeEntry]
	ProjectTable  *Table[domain.ProjectEntity]
	SampleTable   *Table[domain.SampleEntity]
	AssemblyTable *Table[domain.AssemblyEntity]

	PingErr error
}

func NewStore() *Store {
	return &Store{
		IntakeTable:   NewTable[domain.IntakeEntry](),
		ProjectTable:  NewTable[domain.ProjectEntity](),
		SampleTable:   NewTable[domain.SampleEntity](),
		AssemblyTable: NewTable[domain.AssemblyEntity](),
	}
}

var _ db.Store = &Store{}

func (s *Store) Intake() db.Table[domain.IntakeEntry]        { return s.IntakeTable }
func (s *Store) Projects() db.Table[domain.ProjectEntity]    { return s.ProjectTable }
func (s *Store) Samples() db.Table[domain.SampleEntity]      { return s.SampleTable }
func (s *Store) Assemblies() db.Table[domain.AssemblyEntity] { return s.AssemblyTable }
func (s *Store) Ping(context.Context) error                  { return s.PingErr }
func (s *Store) Close()                                      {}
