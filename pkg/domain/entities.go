package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SequenceKey identifies one version of one sequence entry on the host platform.
type SequenceKey struct {
	Accession string
	Version   int64
}

// String returns "ACCESSION.VERSION", e.g. "LOC_0001.1".
func (k SequenceKey) String() string {
	return fmt.Sprintf("%s.%d", k.Accession, k.Version)
}

// ParseSequenceKey parses "ACCESSION.VERSION".
func ParseSequenceKey(s string) (SequenceKey, error) {
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return SequenceKey{}, fmt.Errorf("%q is not ACCESSION.VERSION", s)
	}
	v, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return SequenceKey{}, fmt.Errorf("%q is not ACCESSION.VERSION: %w", s, err)
	}
	return SequenceKey{Accession: s[:i], Version: v}, nil
}

// ProjectKey identifies a project. One project serves every sequence of a group and organism.
type ProjectKey struct {
	GroupID  int64
	Organism string
}

func (k ProjectKey) String() string {
	return fmt.Sprintf("group %d / %s", k.GroupID, k.Organism)
}

// IntakeEntry tracks one sequence version through its project, sample and assembly submissions.
type IntakeEntry struct {
	SequenceKey
	Organism   string
	GroupID    int64
	CenterName string

	// Metadata of the sequence entry, as the host platform has released it.
	Metadata map[string]any

	// Unaligned nucleotide sequences per segment. A nil value means "not sequenced".
	//
	// Unsegmented organisms have one segment named "main".
	UnalignedSequences map[string]*string

	// The map pushed back to the host platform, once it has been sent.
	ExternalMetadata map[string]any

	Status   SubmissionStatus
	Errors   []string
	Warnings []string

	StartedAt  time.Time
	FinishedAt *time.Time
}

func (e IntakeEntry) ProjectKey() ProjectKey {
	return ProjectKey{GroupID: e.GroupID, Organism: e.Organism}
}

// ProjectEntity is the archive project of a (group, organism).
type ProjectEntity struct {
	ProjectKey
	CenterName string

	Status   Status
	Result   *ProjectResult
	Errors   []string
	Warnings []string

	StartedAt  *time.Time
	FinishedAt *time.Time
}

// SampleEntity is the archive sample of a sequence version.
type SampleEntity struct {
	SequenceKey

	Status   Status
	Result   *SampleResult
	Errors   []string
	Warnings []string

	StartedAt  *time.Time
	FinishedAt *time.Time
}

// AssemblyEntity is the archive genome assembly of a sequence version.
type AssemblyEntity struct {
	SequenceKey

	Status   Status
	Result   *AssemblyResult
	Errors   []string
	Warnings []string

	StartedAt  *time.Time
	FinishedAt *time.Time
}
