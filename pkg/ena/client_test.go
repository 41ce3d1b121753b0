package ena_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/loculus-project/ena-deposition/pkg/ena"
)

func readPart(t *testing.T, form *multipart.Form, field string) []byte {
	t.Helper()
	fhs := form.File[field]
	if len(fhs) != 1 {
		t.Fatalf("form field %s: not found", field)
	}
	f, err := fhs[0].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestClient_Submit(t *testing.T) {
	t.Run("it posts SUBMISSION and the document with credentials", func(t *testing.T) {
		var submission, project []byte
		svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user, pass, ok := r.BasicAuth(); !ok || user != "Webin-0000" || pass != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if r.Header.Get(ena.RequestIDHeader) == "" {
				t.Error("request id is not set")
			}
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Fatal(err)
			}
			submission = readPart(t, r.MultipartForm, "SUBMISSION")
			project = readPart(t, r.MultipartForm, "PROJECT")
			w.Write([]byte(`<RECEIPT success="true">
  <PROJECT accession="PRJEB1" alias="a" />
  <SUBMISSION accession="ERA1" alias="a" />
</RECEIPT>`))
		}))
		defer svr.Close()

		testee := ena.New(ena.Config{
			SubmitURL: svr.URL, Username: "Webin-0000", Password: "secret", HoldUntil: "2030-01-01",
		})
		doc, err := ena.ProjectDocument(ena.Project{Alias: "a", Name: "n", Title: "t", Description: "d"})
		if err != nil {
			t.Fatal(err)
		}

		receipt, err := testee.Submit(context.Background(), doc)
		if err != nil {
			t.Fatal(err)
		}
		if acc, _ := receipt.ProjectAccession(); acc != "PRJEB1" {
			t.Errorf("unexpected accession: %s", acc)
		}
		if !bytes.Contains(submission, []byte("<ADD></ADD>")) {
			t.Errorf("submission has no ADD action: %s", submission)
		}
		if !bytes.Contains(submission, []byte(`HoldUntilDate="2030-01-01"`)) {
			t.Errorf("submission has no HOLD action: %s", submission)
		}
		if !bytes.Contains(project, []byte(`<PROJECT alias="a">`)) {
			t.Errorf("unexpected project document: %s", project)
		}
	})

	t.Run("it is unavailable on server error", func(t *testing.T) {
		svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer svr.Close()

		testee := ena.New(ena.Config{SubmitURL: svr.URL})
		_, err := testee.Submit(context.Background(), ena.Document{Kind: "SAMPLE", Body: []byte("<SAMPLE_SET/>")})
		if !errors.Is(err, ena.ErrUnavailable) {
			t.Errorf("unexpected error: %v", err)
		}
		if ena.Recordable(err) {
			t.Error("server error should not be recordable")
		}
	})

	t.Run("it is unavailable on timeout", func(t *testing.T) {
		release := make(chan struct{})
		svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer svr.Close()
		defer close(release)

		testee := ena.New(ena.Config{SubmitURL: svr.URL, Timeout: 50 * time.Millisecond})
		_, err := testee.Submit(context.Background(), ena.Document{Kind: "SAMPLE", Body: []byte("<SAMPLE_SET/>")})
		if !errors.Is(err, ena.ErrUnavailable) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("it is rejected with a receipt answered as bad request", func(t *testing.T) {
		svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`<RECEIPT success="false"><MESSAGES><ERROR>invalid checklist</ERROR></MESSAGES></RECEIPT>`))
		}))
		defer svr.Close()

		testee := ena.New(ena.Config{SubmitURL: svr.URL})
		_, err := testee.Submit(context.Background(), ena.Document{Kind: "SAMPLE", Body: []byte("<SAMPLE_SET/>")})
		if !errors.Is(err, ena.ErrRejected) {
			t.Fatalf("unexpected error: %v", err)
		}
		if msgs := ena.Messages(err); len(msgs) != 1 || msgs[0] != "invalid checklist" {
			t.Errorf("unexpected messages: %v", msgs)
		}
	})
}

func TestClient_SubmitAssembly(t *testing.T) {
	var manifest, chromosomes []byte
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatal(err)
		}
		manifest = readPart(t, r.MultipartForm, "MANIFEST")
		gz := readPart(t, r.MultipartForm, "CHROMOSOME_LIST")
		readPart(t, r.MultipartForm, "FLATFILE")

		zr, err := gzip.NewReader(bytes.NewReader(gz))
		if err != nil {
			t.Fatal(err)
		}
		if chromosomes, err = io.ReadAll(zr); err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(`<RECEIPT success="true"><ANALYSIS accession="ERZ24784470" alias="LOC_0001.1" /></RECEIPT>`))
	}))
	defer svr.Close()

	testee := ena.New(ena.Config{AssemblyURL: svr.URL})
	erz, err := testee.SubmitAssembly(context.Background(), ena.Assembly{
		Name: "LOC_0001.1", Study: "PRJEB1", Sample: "ERS1",
		ScientificName: "Zaire ebolavirus", MoleculeType: "genomic RNA", Topology: "linear",
		Segments: []ena.Segment{{Name: "main", Sequence: "ACGT"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if erz != "ERZ24784470" {
		t.Errorf("unexpected acknowledgement: %s", erz)
	}
	if !strings.Contains(string(manifest), "STUDY\tPRJEB1\n") || !strings.Contains(string(manifest), "SAMPLE\tERS1\n") {
		t.Errorf("unexpected manifest: %s", manifest)
	}
	if string(chromosomes) != "LOC_0001.1\tmain\tlinear-chromosome\n" {
		t.Errorf("unexpected chromosome list: %q", chromosomes)
	}
}

func TestClient_AssemblyReport(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/report/ERZ1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"report": {
  "id": "ERZ1",
  "analysisType": "SEQUENCE_ASSEMBLY",
  "acc": "genome:GCA_900000001.1,chromosomes:OZ189935",
  "processingStatus": "COMPLETED",
  "processingStart": "01-10-2024 12:00:00",
  "processingEnd": "01-10-2024 12:10:00",
  "processingError": null
}, "links": []}]`))
	}))
	defer svr.Close()

	testee := ena.New(ena.Config{ReportURL: svr.URL + "/report"})

	report, err := testee.AssemblyReport(context.Background(), "ERZ1")
	if err != nil {
		t.Fatal(err)
	}
	accs, err := report.Accessions()
	if err != nil {
		t.Fatal(err)
	}
	if !accs.Complete() || accs.Genome != "GCA_900000001.1" {
		t.Errorf("unexpected accessions: %+v", accs)
	}
	if report.Failed() {
		t.Error("report should not be failed")
	}

	if _, err := testee.AssemblyReport(context.Background(), "ERZ2"); err == nil {
		t.Error("expected error is not returned")
	}
}
