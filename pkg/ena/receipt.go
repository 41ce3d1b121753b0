package ena

import (
	"encoding/xml"
	"fmt"
)

// Receipt is the answer of the drop-box.
type Receipt struct {
	XMLName    xml.Name       `xml:"RECEIPT"`
	Success    bool           `xml:"success,attr"`
	Projects   []Accessioned  `xml:"PROJECT"`
	Samples    []Accessioned  `xml:"SAMPLE"`
	Analyses   []Accessioned  `xml:"ANALYSIS"`
	Submission *Accessioned   `xml:"SUBMISSION"`
	Messages   ReceiptMessage `xml:"MESSAGES"`
}

type Accessioned struct {
	Accession string  `xml:"accession,attr"`
	Alias     string  `xml:"alias,attr"`
	Status    string  `xml:"status,attr"`
	ExtIDs    []ExtID `xml:"EXT_ID"`
}

type ExtID struct {
	Accession string `xml:"accession,attr"`
	Type      string `xml:"type,attr"`
}

type ReceiptMessage struct {
	Errors []string `xml:"ERROR"`
	Infos  []string `xml:"INFO"`
}

// ParseReceipt reads a receipt.
//
// A receipt saying success="false" is returned together with Rejection.
func ParseReceipt(body []byte) (*Receipt, error) {
	r := new(Receipt)
	if err := xml.Unmarshal(body, r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if !r.Success {
		msgs := r.Messages.Errors
		if len(msgs) == 0 {
			msgs = []string{"receipt is not successful"}
		}
		return r, Rejection{Messages: msgs}
	}
	return r, nil
}

func first(kind string, as []Accessioned) (Accessioned, error) {
	if len(as) == 0 || as[0].Accession == "" {
		return Accessioned{}, fmt.Errorf("%w: no %s accession in receipt", ErrMalformed, kind)
	}
	return as[0], nil
}

// SubmissionAccession returns the accession of the submission itself.
func (r *Receipt) SubmissionAccession() (string, error) {
	if r.Submission == nil || r.Submission.Accession == "" {
		return "", fmt.Errorf("%w: no SUBMISSION accession in receipt", ErrMalformed)
	}
	return r.Submission.Accession, nil
}

// ProjectAccession returns the accession of the first project.
func (r *Receipt) ProjectAccession() (string, error) {
	p, err := first("PROJECT", r.Projects)
	if err != nil {
		return "", err
	}
	return p.Accession, nil
}

// SampleAccessions returns the archive sample accession and the biosample accession of the first sample.
func (r *Receipt) SampleAccessions() (sample string, biosample string, err error) {
	s, err := first("SAMPLE", r.Samples)
	if err != nil {
		return "", "", err
	}
	for _, ext := range s.ExtIDs {
		if ext.Type == "biosample" && ext.Accession != "" {
			return s.Accession, ext.Accession, nil
		}
	}
	return "", "", fmt.Errorf("%w: no biosample EXT_ID for sample %s", ErrMalformed, s.Accession)
}

// AnalysisAccession returns the accession of the first analysis, that is, acknowledgement id of assembly.
func (r *Receipt) AnalysisAccession() (string, error) {
	a, err := first("ANALYSIS", r.Analyses)
	if err != nil {
		return "", err
	}
	return a.Accession, nil
}
