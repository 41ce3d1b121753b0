package domain

import (
	"maps"
	"slices"
	"time"
)

// ProjectResult is what the archive told about a submitted project.
type ProjectResult struct {
	BioprojectAccession    string `json:"bioproject_accession"`
	EnaSubmissionAccession string `json:"ena_submission_accession"`

	EnaFirstPubliclyVisible  *time.Time `json:"ena_first_publicly_visible,omitempty"`
	NcbiFirstPubliclyVisible *time.Time `json:"ncbi_first_publicly_visible,omitempty"`
}

// SampleResult is what the archive told about a submitted sample.
type SampleResult struct {
	EnaSampleAccession     string `json:"ena_sample_accession"`
	BiosampleAccession     string `json:"biosample_accession"`
	EnaSubmissionAccession string `json:"ena_submission_accession"`

	EnaFirstPubliclyVisible  *time.Time `json:"ena_first_publicly_visible,omitempty"`
	NcbiFirstPubliclyVisible *time.Time `json:"ncbi_first_publicly_visible,omitempty"`
}

// AssemblyResult is what the archive told about a submitted assembly.
//
// While the assembly is WAITING, only ErzAccession (and maybe GcaAccession) is known.
type AssemblyResult struct {
	// acknowledgement id of the assembly submission.
	ErzAccession string `json:"erz_accession"`

	GcaAccession string `json:"gca_accession,omitempty"`

	// nucleotide accession per segment name.
	InsdcAccessions map[string]string `json:"insdc_accessions,omitempty"`

	// segment names, in the order of the chromosome list.
	SegmentOrder []string `json:"segment_order,omitempty"`

	EnaNucleotideFirstPubliclyVisible  *time.Time `json:"ena_nucleotide_first_publicly_visible,omitempty"`
	NcbiNucleotideFirstPubliclyVisible *time.Time `json:"ncbi_nucleotide_first_publicly_visible,omitempty"`
	EnaGcaFirstPubliclyVisible         *time.Time `json:"ena_gca_first_publicly_visible,omitempty"`
	NcbiGcaFirstPubliclyVisible        *time.Time `json:"ncbi_gca_first_publicly_visible,omitempty"`
}

// Complete reports that the genome accession and the accession of every segment are known.
func (a *AssemblyResult) Complete() bool {
	if a == nil || a.GcaAccession == "" || len(a.SegmentOrder) == 0 {
		return false
	}
	for _, seg := range a.SegmentOrder {
		if a.InsdcAccessions[seg] == "" {
			return false
		}
	}
	return true
}

// NucleotideAccessions returns segment accessions in segment order.
func (a *AssemblyResult) NucleotideAccessions() []string {
	if a == nil {
		return nil
	}
	accs := make([]string, 0, len(a.SegmentOrder))
	for _, seg := range a.SegmentOrder {
		if acc := a.InsdcAccessions[seg]; acc != "" {
			accs = append(accs, acc)
		}
	}
	return accs
}

// Equal compares accessions and segment order. Visibility timestamps are ignored.
func (a *AssemblyResult) Equal(o *AssemblyResult) bool {
	if a == nil || o == nil {
		return a == o
	}
	return a.ErzAccession == o.ErzAccession &&
		a.GcaAccession == o.GcaAccession &&
		maps.Equal(a.InsdcAccessions, o.InsdcAccessions) &&
		slices.Equal(a.SegmentOrder, o.SegmentOrder)
}
