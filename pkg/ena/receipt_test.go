package ena_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/loculus-project/ena-deposition/pkg/ena"
)

func TestParseReceipt(t *testing.T) {
	t.Run("it reads accessions of a successful project receipt", func(t *testing.T) {
		receipt, err := ena.ParseReceipt([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<RECEIPT receiptDate="2024-10-01T12:00:00.000+01:00" submissionFile="submission.xml" success="true">
  <PROJECT accession="PRJEB20767" alias="group7:ebola-zaire" status="PRIVATE" />
  <SUBMISSION accession="ERA979927" alias="group7:ebola-zaire" />
  <MESSAGES>
    <INFO>All objects in this submission are set to private status (HOLD).</INFO>
  </MESSAGES>
  <ACTIONS>ADD</ACTIONS>
</RECEIPT>`))
		if err != nil {
			t.Fatal(err)
		}

		project, err := receipt.ProjectAccession()
		if err != nil {
			t.Fatal(err)
		}
		if project != "PRJEB20767" {
			t.Errorf("unexpected project accession: %s", project)
		}
		submission, err := receipt.SubmissionAccession()
		if err != nil {
			t.Fatal(err)
		}
		if submission != "ERA979927" {
			t.Errorf("unexpected submission accession: %s", submission)
		}
	})

	t.Run("it reads sample and biosample accessions", func(t *testing.T) {
		receipt, err := ena.ParseReceipt([]byte(`<RECEIPT success="true">
  <SAMPLE accession="ERS15411111" alias="LOC_0001.1" status="PRIVATE">
    <EXT_ID accession="SAMEA130000001" type="biosample" />
  </SAMPLE>
  <SUBMISSION accession="ERA979928" alias="LOC_0001.1" />
</RECEIPT>`))
		if err != nil {
			t.Fatal(err)
		}

		sample, biosample, err := receipt.SampleAccessions()
		if err != nil {
			t.Fatal(err)
		}
		if sample != "ERS15411111" || biosample != "SAMEA130000001" {
			t.Errorf("unexpected accessions: (%s, %s)", sample, biosample)
		}
	})

	t.Run("it returns Rejection with error messages for unsuccessful receipt", func(t *testing.T) {
		receipt, err := ena.ParseReceipt([]byte(`<RECEIPT success="false">
  <PROJECT alias="group7:ebola-zaire" status="PRIVATE" />
  <MESSAGES>
    <ERROR>In project, alias: "group7:ebola-zaire". The object being added already exists in the submission account with accession: "PRJEB20767".</ERROR>
  </MESSAGES>
</RECEIPT>`))
		if receipt == nil {
			t.Fatal("receipt is not returned")
		}
		if !errors.Is(err, ena.ErrRejected) {
			t.Fatalf("unexpected error: %v", err)
		}
		msgs := ena.Messages(err)
		if len(msgs) != 1 || !slices.Contains(receipt.Messages.Errors, msgs[0]) {
			t.Errorf("unexpected messages: %v", msgs)
		}
		if !ena.Recordable(err) {
			t.Error("rejection should be recordable")
		}
	})

	t.Run("it is malformed when the expected accession is missing", func(t *testing.T) {
		receipt, err := ena.ParseReceipt([]byte(`<RECEIPT success="true"><SAMPLE alias="LOC_0001.1" /></RECEIPT>`))
		if err != nil {
			t.Fatal(err)
		}
		if _, _, err := receipt.SampleAccessions(); !errors.Is(err, ena.ErrMalformed) {
			t.Errorf("unexpected error: %v", err)
		}
		if _, err := receipt.ProjectAccession(); !errors.Is(err, ena.ErrMalformed) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("it is malformed when the biosample is missing", func(t *testing.T) {
		receipt, err := ena.ParseReceipt([]byte(`<RECEIPT success="true"><SAMPLE accession="ERS1" alias="x" /></RECEIPT>`))
		if err != nil {
			t.Fatal(err)
		}
		if _, _, err := receipt.SampleAccessions(); !errors.Is(err, ena.ErrMalformed) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("it is malformed when it is not xml", func(t *testing.T) {
		_, err := ena.ParseReceipt([]byte(`<html><body>Service Unavailable`))
		if !errors.Is(err, ena.ErrMalformed) {
			t.Errorf("unexpected error: %v", err)
		}
		if !ena.Recordable(err) {
			t.Error("malformed response should be recordable")
		}
	})
}
