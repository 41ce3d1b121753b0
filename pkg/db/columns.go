package db

import (
	"fmt"

	"github.com/loculus-project/ena-deposition/pkg/domain"
)

// Kind is the storage kind of a column.
type Kind int

const (
	Text Kind = iota
	Int
	JSON
	Timestamp
)

// Column is a column of a table, or a key of the JSON object stored in a column.
//
// Columns can only be obtained from the allow-lists in this package
// (Intake, Project, Sample, Assembly). A zero Column is never allowed.
type Column struct {
	table string
	name  string
	key   string
	kind  Kind
}

func column(table, name string, kind Kind) Column {
	return Column{table: table, name: name, kind: kind}
}

// field is the key in the JSON object stored in column c. Its value is compared as text.
func (c Column) field(key string) Column {
	return Column{table: c.table, name: c.name, key: key, kind: Text}
}

func (c Column) Table() string { return c.table }
func (c Column) Name() string  { return c.name }
func (c Column) Key() string   { return c.key }
func (c Column) Kind() Kind    { return c.kind }

// IsField reports that c refers a key in a JSON column rather than a column itself.
func (c Column) IsField() bool { return c.key != "" }

func (c Column) String() string {
	if c.key != "" {
		return fmt.Sprintf("%s.%s->%s", c.table, c.name, c.key)
	}
	return fmt.Sprintf("%s.%s", c.table, c.name)
}

// Schema is a table and its allow-list of columns.
type Schema struct {
	name    string
	key     []Column
	columns []Column
	fields  []Column
}

func (s *Schema) Name() string { return s.name }

// Columns returns the columns of the table, in the order rows are read and inserted.
func (s *Schema) Columns() []Column { return s.columns }

// Key returns the primary key columns.
func (s *Schema) Key() []Column { return s.key }

// Allows reports that c is in the allow-list of s.
func (s *Schema) Allows(c Column) bool {
	for _, a := range s.columns {
		if a == c {
			return true
		}
	}
	for _, a := range s.fields {
		if a == c {
			return true
		}
	}
	return false
}

const (
	IntakeTableName   = "submission_table"
	ProjectTableName  = "project_table"
	SampleTableName   = "sample_table"
	AssemblyTableName = "assembly_table"
)

type intakeColumns struct {
	Accession          Column
	Version            Column
	Organism           Column
	GroupID            Column
	CenterName         Column
	Metadata           Column
	UnalignedSequences Column
	ExternalMetadata   Column
	Status             Column
	Errors             Column
	Warnings           Column
	StartedAt          Column
	FinishedAt         Column
}

func (c intakeColumns) KeyOf(k domain.SequenceKey) []Cond {
	return []Cond{Eq(c.Accession, k.Accession), Eq(c.Version, k.Version)}
}

// Intake is the allow-list of submission_table.
var Intake = intakeColumns{
	Accession:          column(IntakeTableName, "accession", Text),
	Version:            column(IntakeTableName, "version", Int),
	Organism:           column(IntakeTableName, "organism", Text),
	GroupID:            column(IntakeTableName, "group_id", Int),
	CenterName:         column(IntakeTableName, "center_name", Text),
	Metadata:           column(IntakeTableName, "metadata", JSON),
	UnalignedSequences: column(IntakeTableName, "unaligned_nucleotide_sequences", JSON),
	ExternalMetadata:   column(IntakeTableName, "external_metadata", JSON),
	Status:             column(IntakeTableName, "status_all", Text),
	Errors:             column(IntakeTableName, "errors", JSON),
	Warnings:           column(IntakeTableName, "warnings", JSON),
	StartedAt:          column(IntakeTableName, "started_at", Timestamp),
	FinishedAt:         column(IntakeTableName, "finished_at", Timestamp),
}

type projectColumns struct {
	GroupID    Column
	Organism   Column
	CenterName Column
	Status     Column
	Result     Column
	Errors     Column
	Warnings   Column
	StartedAt  Column
	FinishedAt Column

	// keys of Result
	BioprojectAccession Column
	EnaVisible          Column
	NcbiVisible         Column
}

func (c projectColumns) KeyOf(k domain.ProjectKey) []Cond {
	return []Cond{Eq(c.GroupID, k.GroupID), Eq(c.Organism, k.Organism)}
}

// Project is the allow-list of project_table.
var Project = func() projectColumns {
	result := column(ProjectTableName, "result", JSON)
	return projectColumns{
		GroupID:    column(ProjectTableName, "group_id", Int),
		Organism:   column(ProjectTableName, "organism", Text),
		CenterName: column(ProjectTableName, "center_name", Text),
		Status:     column(ProjectTableName, "status", Text),
		Result:     result,
		Errors:     column(ProjectTableName, "errors", JSON),
		Warnings:   column(ProjectTableName, "warnings", JSON),
		StartedAt:  column(ProjectTableName, "started_at", Timestamp),
		FinishedAt: column(ProjectTableName, "finished_at", Timestamp),

		BioprojectAccession: result.field("bioproject_accession"),
		EnaVisible:          result.field("ena_first_publicly_visible"),
		NcbiVisible:         result.field("ncbi_first_publicly_visible"),
	}
}()

type sampleColumns struct {
	Accession  Column
	Version    Column
	Status     Column
	Result     Column
	Errors     Column
	Warnings   Column
	StartedAt  Column
	FinishedAt Column

	// keys of Result
	EnaVisible  Column
	NcbiVisible Column
}

func (c sampleColumns) KeyOf(k domain.SequenceKey) []Cond {
	return []Cond{Eq(c.Accession, k.Accession), Eq(c.Version, k.Version)}
}

// Sample is the allow-list of sample_table.
var Sample = func() sampleColumns {
	result := column(SampleTableName, "result", JSON)
	return sampleColumns{
		Accession:  column(SampleTableName, "accession", Text),
		Version:    column(SampleTableName, "version", Int),
		Status:     column(SampleTableName, "status", Text),
		Result:     result,
		Errors:     column(SampleTableName, "errors", JSON),
		Warnings:   column(SampleTableName, "warnings", JSON),
		StartedAt:  column(SampleTableName, "started_at", Timestamp),
		FinishedAt: column(SampleTableName, "finished_at", Timestamp),

		EnaVisible:  result.field("ena_first_publicly_visible"),
		NcbiVisible: result.field("ncbi_first_publicly_visible"),
	}
}()

type assemblyColumns struct {
	Accession  Column
	Version    Column
	Status     Column
	Result     Column
	Errors     Column
	Warnings   Column
	StartedAt  Column
	FinishedAt Column

	// keys of Result
	EnaNucleotideVisible  Column
	NcbiNucleotideVisible Column
	EnaGcaVisible         Column
	NcbiGcaVisible        Column
}

func (c assemblyColumns) KeyOf(k domain.SequenceKey) []Cond {
	return []Cond{Eq(c.Accession, k.Accession), Eq(c.Version, k.Version)}
}

// Assembly is the allow-list of assembly_table.
var Assembly = func() assemblyColumns {
	result := column(AssemblyTableName, "result", JSON)
	return assemblyColumns{
		Accession:  column(AssemblyTableName, "accession", Text),
		Version:    column(AssemblyTableName, "version", Int),
		Status:     column(AssemblyTableName, "status", Text),
		Result:     result,
		Errors:     column(AssemblyTableName, "errors", JSON),
		Warnings:   column(AssemblyTableName, "warnings", JSON),
		StartedAt:  column(AssemblyTableName, "started_at", Timestamp),
		FinishedAt: column(AssemblyTableName, "finished_at", Timestamp),

		EnaNucleotideVisible:  result.field("ena_nucleotide_first_publicly_visible"),
		NcbiNucleotideVisible: result.field("ncbi_nucleotide_first_publicly_visible"),
		EnaGcaVisible:         result.field("ena_gca_first_publicly_visible"),
		NcbiGcaVisible:        result.field("ncbi_gca_first_publicly_visible"),
	}
}()

var (
	IntakeSchema = &Schema{
		name: IntakeTableName,
		key:  []Column{Intake.Accession, Intake.Version},
		columns: []Column{
			Intake.Accession, Intake.Version, Intake.Organism, Intake.GroupID, Intake.CenterName,
			Intake.Metadata, Intake.UnalignedSequences, Intake.ExternalMetadata,
			Intake.Status, Intake.Errors, Intake.Warnings, Intake.StartedAt, Intake.FinishedAt,
		},
	}

	ProjectSchema = &Schema{
		name: ProjectTableName,
		key:  []Column{Project.GroupID, Project.Organism},
		columns: []Column{
			Project.GroupID, Project.Organism, Project.CenterName,
			Project.Status, Project.Result, Project.Errors, Project.Warnings,
			Project.StartedAt, Project.FinishedAt,
		},
		fields: []Column{Project.BioprojectAccession, Project.EnaVisible, Project.NcbiVisible},
	}

	SampleSchema = &Schema{
		name: SampleTableName,
		key:  []Column{Sample.Accession, Sample.Version},
		columns: []Column{
			Sample.Accession, Sample.Version,
			Sample.Status, Sample.Result, Sample.Errors, Sample.Warnings,
			Sample.StartedAt, Sample.FinishedAt,
		},
		fields: []Column{Sample.EnaVisible, Sample.NcbiVisible},
	}

	AssemblySchema = &Schema{
		name: AssemblyTableName,
		key:  []Column{Assembly.Accession, Assembly.Version},
		columns: []Column{
			Assembly.Accession, Assembly.Version,
			Assembly.Status, Assembly.Result, Assembly.Errors, Assembly.Warnings,
			Assembly.StartedAt, Assembly.FinishedAt,
		},
		fields: []Column{
			Assembly.EnaNucleotideVisible, Assembly.NcbiNucleotideVisible,
			Assembly.EnaGcaVisible, Assembly.NcbiGcaVisible,
		},
	}
)

// StatusColumn returns the status column of the table.
func (s *Schema) StatusColumn() Column {
	for _, c := range s.columns {
		if c.name == "status" || c.name == "status_all" {
			return c
		}
	}
	return Column{}
}
