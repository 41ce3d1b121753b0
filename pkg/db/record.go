package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/loculus-project/ena-deposition/pkg/domain"
)

// Record is a row in its neutral storage representation (see Encode).
//
// Backends scan rows into Records and insert Records; codecs convert them to and from domain types.
type Record struct {
	schema *Schema
	values []any
}

// NewRecord returns an empty record of s. Backends fill it with Put.
func NewRecord(s *Schema) Record {
	return Record{schema: s, values: make([]any, len(s.columns))}
}

func (r Record) Schema() *Schema { return r.schema }

func (r Record) index(c Column) int {
	for i, cc := range r.schema.columns {
		if cc == c {
			return i
		}
	}
	panic(fmt.Sprintf("%s is not a column of %s", c, r.schema.name))
}

// Put stores an already neutral value. Backends use this when scanning.
func (r Record) Put(c Column, v any) {
	r.values[r.index(c)] = v
}

// Value returns the neutral value of c.
func (r Record) Value(c Column) any {
	return r.values[r.index(c)]
}

func (r Record) set(c Column, v any) error {
	enc, err := Encode(c, v)
	if err != nil {
		return err
	}
	r.values[r.index(c)] = enc
	return nil
}

func (r Record) text(c Column) string {
	s, _ := r.Value(c).(string)
	return s
}

func (r Record) int(c Column) int64 {
	i, _ := r.Value(c).(int64)
	return i
}

func (r Record) time(c Column) *time.Time {
	switch t := r.Value(c).(type) {
	case time.Time:
		return &t
	case *time.Time:
		return t
	}
	return nil
}

func (r Record) json(c Column, dst any) error {
	var raw []byte
	switch v := r.Value(c).(type) {
	case nil:
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("%s: unexpected json value %T", c, v)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%s: %w", c, err)
	}
	return nil
}

// Codec converts between rows of a table and its domain type.
type Codec[R any] struct {
	Schema *Schema
	Encode func(R) (Record, error)
	Decode func(Record) (R, error)
}

func setAll(r Record, pairs ...Assign) error {
	for _, p := range pairs {
		if err := r.set(p.Column, p.Value); err != nil {
			return err
		}
	}
	return nil
}

var IntakeCodec = Codec[domain.IntakeEntry]{
	Schema: IntakeSchema,
	Encode: func(e domain.IntakeEntry) (Record, error) {
		r := NewRecord(IntakeSchema)
		c := Intake
		err := setAll(
			r,
			Set(c.Accession, e.Accession),
			Set(c.Version, e.Version),
			Set(c.Organism, e.Organism),
			Set(c.GroupID, e.GroupID),
			Set(c.CenterName, e.CenterName),
			Set(c.Metadata, e.Metadata),
			Set(c.UnalignedSequences, e.UnalignedSequences),
			Set(c.ExternalMetadata, e.ExternalMetadata),
			Set(c.Status, e.Status),
			Set(c.Errors, e.Errors),
			Set(c.Warnings, e.Warnings),
			Set(c.StartedAt, e.StartedAt),
			Set(c.FinishedAt, e.FinishedAt),
		)
		return r, err
	},
	Decode: func(r Record) (domain.IntakeEntry, error) {
		c := Intake
		st, err := domain.AsSubmissionStatus(r.text(c.Status))
		if err != nil {
			return domain.IntakeEntry{}, err
		}
		e := domain.IntakeEntry{
			SequenceKey: domain.SequenceKey{Accession: r.text(c.Accession), Version: r.int(c.Version)},
			Organism:    r.text(c.Organism),
			GroupID:     r.int(c.GroupID),
			CenterName:  r.text(c.CenterName),
			Status:      st,
			FinishedAt:  r.time(c.FinishedAt),
		}
		if t := r.time(c.StartedAt); t != nil {
			e.StartedAt = *t
		}
		for col, dst := range map[Column]any{
			c.Metadata:           &e.Metadata,
			c.UnalignedSequences: &e.UnalignedSequences,
			c.ExternalMetadata:   &e.ExternalMetadata,
			c.Errors:             &e.Errors,
			c.Warnings:           &e.Warnings,
		} {
			if err := r.json(col, dst); err != nil {
				return domain.IntakeEntry{}, err
			}
		}
		return e, nil
	},
}

var ProjectCodec = Codec[domain.ProjectEntity]{
	Schema: ProjectSchema,
	Encode: func(p domain.ProjectEntity) (Record, error) {
		r := NewRecord(ProjectSchema)
		c := Project
		err := setAll(
			r,
			Set(c.GroupID, p.GroupID),
			Set(c.Organism, p.Organism),
			Set(c.CenterName, p.CenterName),
			Set(c.Status, p.Status),
			Set(c.Result, p.Result),
			Set(c.Errors, p.Errors),
			Set(c.Warnings, p.Warnings),
			Set(c.StartedAt, p.StartedAt),
			Set(c.FinishedAt, p.FinishedAt),
		)
		return r, err
	},
	Decode: func(r Record) (domain.ProjectEntity, error) {
		c := Project
		st, err := domain.AsStatus(r.text(c.Status))
		if err != nil {
			return domain.ProjectEntity{}, err
		}
		p := domain.ProjectEntity{
			ProjectKey: domain.ProjectKey{GroupID: r.int(c.GroupID), Organism: r.text(c.Organism)},
			CenterName: r.text(c.CenterName),
			Status:     st,
			StartedAt:  r.time(c.StartedAt),
			FinishedAt: r.time(c.FinishedAt),
		}
		for col, dst := range map[Column]any{
			c.Result: &p.Result, c.Errors: &p.Errors, c.Warnings: &p.Warnings,
		} {
			if err := r.json(col, dst); err != nil {
				return domain.ProjectEntity{}, err
			}
		}
		return p, nil
	},
}

var SampleCodec = Codec[domain.SampleEntity]{
	Schema: SampleSchema,
	Encode: func(s domain.SampleEntity) (Record, error) {
		r := NewRecord(SampleSchema)
		c := Sample
		err := setAll(
			r,
			Set(c.Accession, s.Accession),
			Set(c.Version, s.Version),
			Set(c.Status, s.Status),
			Set(c.Result, s.Result),
			Set(c.Errors, s.Errors),
			Set(c.Warnings, s.Warnings),
			Set(c.StartedAt, s.StartedAt),
			Set(c.FinishedAt, s.FinishedAt),
		)
		return r, err
	},
	Decode: func(r Record) (domain.SampleEntity, error) {
		c := Sample
		st, err := domain.AsStatus(r.text(c.Status))
		if err != nil {
			return domain.SampleEntity{}, err
		}
		s := domain.SampleEntity{
			SequenceKey: domain.SequenceKey{Accession: r.text(c.Accession), Version: r.int(c.Version)},
			Status:      st,
			StartedAt:   r.time(c.StartedAt),
			FinishedAt:  r.time(c.FinishedAt),
		}
		for col, dst := range map[Column]any{
			c.Result: &s.Result, c.Errors: &s.Errors, c.Warnings: &s.Warnings,
		} {
			if err := r.json(col, dst); err != nil {
				return domain.SampleEntity{}, err
			}
		}
		return s, nil
	},
}

var AssemblyCodec = Codec[domain.AssemblyEntity]{
	Schema: AssemblySchema,
	Encode: func(a domain.AssemblyEntity) (Record, error) {
		r := NewRecord(AssemblySchema)
		c := Assembly
		err := setAll(
			r,
			Set(c.Accession, a.Accession),
			Set(c.Version, a.Version),
			Set(c.Status, a.Status),
			Set(c.Result, a.Result),
			Set(c.Errors, a.Errors),
			Set(c.Warnings, a.Warnings),
			Set(c.StartedAt, a.StartedAt),
			Set(c.FinishedAt, a.FinishedAt),
		)
		return r, err
	},
	Decode: func(r Record) (domain.AssemblyEntity, error) {
		c := Assembly
		st, err := domain.AsStatus(r.text(c.Status))
		if err != nil {
			return domain.AssemblyEntity{}, err
		}
		a := domain.AssemblyEntity{
			SequenceKey: domain.SequenceKey{Accession: r.text(c.Accession), Version: r.int(c.Version)},
			Status:      st,
			StartedAt:   r.time(c.StartedAt),
			FinishedAt:  r.time(c.FinishedAt),
		}
		for col, dst := range map[Column]any{
			c.Result: &a.Result, c.Errors: &a.Errors, c.Warnings: &a.Warnings,
		} {
			if err := r.json(col, dst); err != nil {
				return domain.AssemblyEntity{}, err
			}
		}
		return a, nil
	},
}
