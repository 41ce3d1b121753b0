package domain

import "fmt"

// SubmissionStatus is the aggregate status of an IntakeEntry.
//
// Statuses are totally ordered (see Rank) and an IntakeEntry only moves forward.
type SubmissionStatus string

const (
	// Placed by the intake process. Nothing has been done yet.
	ReadyToSubmit SubmissionStatus = "READY_TO_SUBMIT"

	// A project row for (group, organism) exists, and it is not SUBMITTED yet.
	SubmittingProject SubmissionStatus = "SUBMITTING_PROJECT"
	SubmittedProject  SubmissionStatus = "SUBMITTED_PROJECT"

	SubmittingSample SubmissionStatus = "SUBMITTING_SAMPLE"
	SubmittedSample  SubmissionStatus = "SUBMITTED_SAMPLE"

	SubmittingAssembly SubmissionStatus = "SUBMITTING_ASSEMBLY"

	// Project, sample and assembly are all SUBMITTED.
	SubmittedAll SubmissionStatus = "SUBMITTED_ALL"

	// Pushing external metadata back to the host platform has failed.
	// It is retried by the next sweep.
	HasErrorsExtMetadataUpload SubmissionStatus = "HAS_ERRORS_EXT_METADATA_UPLOAD"

	// External metadata has been accepted by the host platform.
	SentToLoculus SubmissionStatus = "SENT_TO_LOCULUS"
)

func (s SubmissionStatus) String() string {
	return string(s)
}

// Rank returns the position of s in the total order of aggregate statuses.
//
// Unknown statuses rank -1.
func (s SubmissionStatus) Rank() int {
	switch s {
	case ReadyToSubmit:
		return 0
	case SubmittingProject:
		return 1
	case SubmittedProject:
		return 2
	case SubmittingSample:
		return 3
	case SubmittedSample:
		return 4
	case SubmittingAssembly:
		return 5
	case SubmittedAll:
		return 6
	case HasErrorsExtMetadataUpload:
		return 7
	case SentToLoculus:
		return 8
	}
	return -1
}

// Compare returns -1, 0 or +1 as s precedes, equals or follows other.
func (s SubmissionStatus) Compare(other SubmissionStatus) int {
	a, b := s.Rank(), other.Rank()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// CanAdvanceTo reports whether moving from s to next keeps the status non-decreasing.
//
// Staying at the same status is allowed (idempotent re-flag).
func (s SubmissionStatus) CanAdvanceTo(next SubmissionStatus) bool {
	if s.Rank() < 0 || next.Rank() < 0 {
		return false
	}
	return s.Compare(next) <= 0
}

func AsSubmissionStatus(s string) (SubmissionStatus, error) {
	st := SubmissionStatus(s)
	if st.Rank() < 0 {
		return "", fmt.Errorf("unknown submission status: %q", s)
	}
	return st, nil
}

// Status is the status of a child entity (project, sample or assembly).
type Status string

const (
	Ready      Status = "READY"
	Submitting Status = "SUBMITTING"

	// The archive has acknowledged an assembly, but has not assigned accessions yet.
	//
	// Only assemblies can be Waiting.
	Waiting Status = "WAITING"

	Submitted Status = "SUBMITTED"
	HasErrors Status = "HAS_ERRORS"
)

func (s Status) String() string {
	return string(s)
}

// Rank orders child statuses. HasErrors and Submitted are both terminal and share the top rank.
func (s Status) Rank() int {
	switch s {
	case Ready:
		return 0
	case Submitting:
		return 1
	case Waiting:
		return 2
	case Submitted, HasErrors:
		return 3
	}
	return -1
}

// Succeeded reports that s is the terminal-success status.
func (s Status) Succeeded() bool {
	return s == Submitted
}

func AsStatus(s string) (Status, error) {
	st := Status(s)
	if st.Rank() < 0 {
		return "", fmt.Errorf("unknown status: %q", s)
	}
	return st, nil
}

// Kind names a child entity kind.
type Kind string

const (
	ProjectKind  Kind = "project"
	SampleKind   Kind = "sample"
	AssemblyKind Kind = "assembly"
)

func (k Kind) String() string {
	return string(k)
}

// CanTransit reports whether the child entity of kind k may move from one status to another.
//
//	project, sample: READY -> SUBMITTING -> {SUBMITTED | HAS_ERRORS}
//	assembly:        READY -> SUBMITTING -> WAITING -> {SUBMITTED | HAS_ERRORS}
//	                                     \-> HAS_ERRORS
//
// WAITING -> WAITING is allowed for assemblies, to persist partial results.
// SUBMITTING -> READY releases a claim when the archive is not reachable.
func (k Kind) CanTransit(from, to Status) bool {
	switch from {
	case Ready:
		return to == Submitting
	case Submitting:
		switch to {
		case Ready, Submitted, HasErrors:
			return true
		case Waiting:
			return k == AssemblyKind
		}
	case Waiting:
		if k != AssemblyKind {
			return false
		}
		switch to {
		case Waiting, Submitted, HasErrors:
			return true
		}
	}
	return false
}

// Submitting returns the aggregate status meaning "the child of kind k is being submitted".
func (k Kind) Submitting() SubmissionStatus {
	switch k {
	case ProjectKind:
		return SubmittingProject
	case SampleKind:
		return SubmittingSample
	case AssemblyKind:
		return SubmittingAssembly
	}
	return ""
}

// Submitted returns the aggregate status meaning "the child of kind k is submitted".
//
// Assembly is the last child, so its completion is SubmittedAll.
func (k Kind) Submitted() SubmissionStatus {
	switch k {
	case ProjectKind:
		return SubmittedProject
	case SampleKind:
		return SubmittedSample
	case AssemblyKind:
		return SubmittedAll
	}
	return ""
}

// ReadyFor returns the aggregate status meaning "the child of kind k can be started".
func (k Kind) ReadyFor() SubmissionStatus {
	switch k {
	case ProjectKind:
		return ReadyToSubmit
	case SampleKind:
		return SubmittedProject
	case AssemblyKind:
		return SubmittedSample
	}
	return ""
}
