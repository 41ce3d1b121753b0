package ena

import (
	"encoding/xml"
	"fmt"
)

// ProjectSet is the PROJECT document of the drop-box submission.
type ProjectSet struct {
	XMLName xml.Name  `xml:"PROJECT_SET"`
	Project []Project `xml:"PROJECT"`
}

type Project struct {
	Alias       string            `xml:"alias,attr"`
	CenterName  string            `xml:"center_name,attr,omitempty"`
	Name        string            `xml:"NAME"`
	Title       string            `xml:"TITLE"`
	Description string            `xml:"DESCRIPTION"`
	Submission  SubmissionProject `xml:"SUBMISSION_PROJECT"`
	Links       []ProjectLink     `xml:"PROJECT_LINKS>PROJECT_LINK,omitempty"`
}

type SubmissionProject struct {
	SequencingProject struct{}  `xml:"SEQUENCING_PROJECT"`
	Organism          *Organism `xml:"ORGANISM,omitempty"`
}

type Organism struct {
	TaxonID        int64  `xml:"TAXON_ID"`
	ScientificName string `xml:"SCIENTIFIC_NAME"`
}

type ProjectLink struct {
	XRef XRefLink `xml:"XREF_LINK"`
}

type XRefLink struct {
	DB string `xml:"DB"`
	ID string `xml:"ID"`
}

// SampleSet is the SAMPLE document of the drop-box submission.
type SampleSet struct {
	XMLName xml.Name `xml:"SAMPLE_SET"`
	Sample  []Sample `xml:"SAMPLE"`
}

type Sample struct {
	Alias       string            `xml:"alias,attr"`
	CenterName  string            `xml:"center_name,attr,omitempty"`
	Title       string            `xml:"TITLE"`
	Name        SampleName        `xml:"SAMPLE_NAME"`
	Description string            `xml:"DESCRIPTION,omitempty"`
	Links       []SampleLink      `xml:"SAMPLE_LINKS>SAMPLE_LINK,omitempty"`
	Attributes  []SampleAttribute `xml:"SAMPLE_ATTRIBUTES>SAMPLE_ATTRIBUTE"`
}

type SampleName struct {
	TaxonID        int64  `xml:"TAXON_ID"`
	ScientificName string `xml:"SCIENTIFIC_NAME"`
}

type SampleLink struct {
	URL URLLink `xml:"URL_LINK"`
}

type URLLink struct {
	Label string `xml:"LABEL"`
	URL   string `xml:"URL"`
}

type SampleAttribute struct {
	Tag   string `xml:"TAG"`
	Value string `xml:"VALUE"`
	Units string `xml:"UNITS,omitempty"`
}

// submission is the SUBMISSION document telling what to do with the other document.
type submission struct {
	XMLName xml.Name `xml:"SUBMISSION"`
	Actions []action `xml:"ACTIONS>ACTION"`
}

type action struct {
	Add  *struct{} `xml:"ADD,omitempty"`
	Hold *hold     `xml:"HOLD,omitempty"`
}

type hold struct {
	HoldUntilDate string `xml:"HoldUntilDate,attr"`
}

func submissionDocument(holdUntil string) ([]byte, error) {
	s := submission{Actions: []action{{Add: &struct{}{}}}}
	if holdUntil != "" {
		s.Actions = append(s.Actions, action{Hold: &hold{HoldUntilDate: holdUntil}})
	}
	return marshal(s)
}

func marshal(v any) ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return append([]byte(xml.Header), body...), nil
}

// Document is a document to be submitted to the drop-box.
type Document struct {
	// form field name: "PROJECT" or "SAMPLE".
	Kind string

	Body []byte
}

// ProjectDocument marshals p into a PROJECT document.
func ProjectDocument(p Project) (Document, error) {
	body, err := marshal(ProjectSet{Project: []Project{p}})
	if err != nil {
		return Document{}, err
	}
	return Document{Kind: "PROJECT", Body: body}, nil
}

// SampleDocument marshals s into a SAMPLE document.
func SampleDocument(s Sample) (Document, error) {
	body, err := marshal(SampleSet{Sample: []Sample{s}})
	if err != nil {
		return Document{}, err
	}
	return Document{Kind: "SAMPLE", Body: body}, nil
}
