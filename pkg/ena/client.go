package ena

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client talks to the archive.
type Client interface {
	// Submit submits a project or sample document to the drop-box, and returns its receipt.
	//
	// A receipt with success="false" is returned with Rejection.
	Submit(ctx context.Context, doc Document) (*Receipt, error)

	// SubmitAssembly submits an assembly manifest.
	//
	// It returns the acknowledgement id (ERZ accession). Public accessions are assigned later.
	SubmitAssembly(ctx context.Context, a Assembly) (string, error)

	// AssemblyReport fetches the process report of the assembly acknowledged as erz.
	AssemblyReport(ctx context.Context, erz string) (*ProcessReport, error)
}

// Processing status in process reports.
const (
	ProcessPending    = "PENDING"
	ProcessProcessing = "PROCESSING"
	ProcessCompleted  = "COMPLETED"
	ProcessError      = "ERROR"
)

// ProcessReport is a report of the assembly processing.
type ProcessReport struct {
	ID               string `json:"id"`
	AnalysisType     string `json:"analysisType"`
	Acc              string `json:"acc"`
	ProcessingStatus string `json:"processingStatus"`
	ProcessingStart  string `json:"processingStart"`
	ProcessingEnd    string `json:"processingEnd"`
	ProcessingError  string `json:"processingError"`
}

// Accessions parses Acc.
func (r *ProcessReport) Accessions() (Accessions, error) {
	return ParseAccessions(r.Acc)
}

// Failed reports that the archive gave up the processing.
func (r *ProcessReport) Failed() bool {
	return strings.EqualFold(r.ProcessingStatus, ProcessError)
}

type Config struct {
	SubmitURL   string
	AssemblyURL string
	ReportURL   string
	Username    string
	Password    string
	HoldUntil   string
	Timeout     time.Duration
}

type client struct {
	conf Config
	hc   *http.Client
}

// New creates a Client.
//
// Every request has conf.Timeout. Requests are not retried.
func New(conf Config) Client {
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{conf: conf, hc: &http.Client{Timeout: timeout}}
}

// RequestIDHeader carries an id of each request to the archive. It is also logged.
const RequestIDHeader = "X-Request-Id"

func (c *client) do(req *http.Request) ([]byte, error) {
	req.SetBasicAuth(c.conf.Username, c.conf.Password)
	req.Header.Set(RequestIDHeader, uuid.NewString())

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrUnavailable, req.Method, req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: reading response: %w", ErrUnavailable, req.Method, req.URL.Redacted(), err)
	}

	switch {
	case 500 <= resp.StatusCode:
		return nil, fmt.Errorf(
			"%w: %s %s: status %d (request id %s)",
			ErrUnavailable, req.Method, req.URL.Redacted(), resp.StatusCode, req.Header.Get(RequestIDHeader),
		)
	case resp.StatusCode == http.StatusBadRequest:
		// drop-box answers validation errors with 400 and a receipt.
		if r, err := ParseReceipt(body); r != nil && err != nil {
			return nil, err
		}
		return nil, Rejection{Messages: []string{strings.TrimSpace(string(body))}}
	case resp.StatusCode < 200 || 300 <= resp.StatusCode:
		return nil, fmt.Errorf(
			"%s %s: unexpected status %d (request id %s): %s",
			req.Method, req.URL.Redacted(), resp.StatusCode, req.Header.Get(RequestIDHeader), body,
		)
	}
	return body, nil
}

type part struct {
	field    string
	filename string
	body     []byte
}

func multipartBody(parts ...part) (*bytes.Buffer, string, error) {
	buf := new(bytes.Buffer)
	w := multipart.NewWriter(buf)
	for _, p := range parts {
		pw, err := w.CreateFormFile(p.field, p.filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := pw.Write(p.body); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func (c *client) post(ctx context.Context, url string, parts ...part) (*Receipt, error) {
	body, contentType, err := multipartBody(parts...)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return ParseReceipt(resp)
}

func (c *client) Submit(ctx context.Context, doc Document) (*Receipt, error) {
	sub, err := submissionDocument(c.conf.HoldUntil)
	if err != nil {
		return nil, err
	}
	return c.post(
		ctx, c.conf.SubmitURL,
		part{field: "SUBMISSION", filename: "submission.xml", body: sub},
		part{field: doc.Kind, filename: strings.ToLower(doc.Kind) + ".xml", body: doc.Body},
	)
}

func (c *client) SubmitAssembly(ctx context.Context, a Assembly) (string, error) {
	chromosomes, err := Gzip(a.ChromosomeList())
	if err != nil {
		return "", err
	}
	flatfile, err := Gzip(a.FlatFile())
	if err != nil {
		return "", err
	}
	receipt, err := c.post(
		ctx, c.conf.AssemblyURL,
		part{field: "MANIFEST", filename: "manifest.tsv", body: a.Manifest()},
		part{field: "CHROMOSOME_LIST", filename: ChromosomeListFile, body: chromosomes},
		part{field: "FLATFILE", filename: FlatFileFile, body: flatfile},
	)
	if err != nil {
		return "", err
	}
	return receipt.AnalysisAccession()
}

type reportEntry struct {
	Report ProcessReport `json:"report"`
}

func (c *client) AssemblyReport(ctx context.Context, erz string) (*ProcessReport, error) {
	u, err := url.JoinPath(c.conf.ReportURL, url.PathEscape(erz))
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?format=json", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	entries := []reportEntry{}
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("%w: process report of %s: %w", ErrMalformed, erz, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no process report for %s", ErrMalformed, erz)
	}
	return &entries[0].Report, nil
}
