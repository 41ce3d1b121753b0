package main

import (
	"strings"
	"testing"
	"time"

	"github.com/loculus-project/ena-deposition/pkg/domain"
)

func TestReadIntake(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	organisms := map[string]bool{"ebola-zaire": true, "cchf": true}

	t.Run("it reads every line as ready entries", func(t *testing.T) {
		in := strings.NewReader(`{"accession": "LOC_0001", "version": 1, "organism": "ebola-zaire", "groupId": 7, "centerName": "Some Center", "metadata": {"sampleCollectionDate": "2024-01-02"}, "unalignedNucleotideSequences": {"main": "ACGT"}}
{"accession": "LOC_0002", "version": 3, "organism": "cchf", "groupId": 8, "unalignedNucleotideSequences": {"L": "ACGT", "M": null, "S": "TTT"}}
`)
		got, err := ReadIntake(in, organisms, now)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Fatalf("entries: %+v", got)
		}

		first := got[0]
		if first.SequenceKey != (domain.SequenceKey{Accession: "LOC_0001", Version: 1}) ||
			first.Organism != "ebola-zaire" || first.GroupID != 7 || first.CenterName != "Some Center" {
			t.Errorf("first: %+v", first)
		}
		if first.Metadata["sampleCollectionDate"] != "2024-01-02" {
			t.Errorf("first metadata: %v", first.Metadata)
		}
		if first.Status != domain.ReadyToSubmit || !first.StartedAt.Equal(now) {
			t.Errorf("first status: %s at %s", first.Status, first.StartedAt)
		}

		second := got[1]
		if second.Metadata == nil {
			t.Error("metadata should be defaulted to empty")
		}
		if m, ok := second.UnalignedSequences["M"]; !ok || m != nil {
			t.Errorf("segment M should be present and null: %v", second.UnalignedSequences)
		}
		if s := second.UnalignedSequences["S"]; s == nil || *s != "TTT" {
			t.Errorf("segment S: %v", second.UnalignedSequences)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		got, err := ReadIntake(strings.NewReader(""), organisms, now)
		if err != nil || len(got) != 0 {
			t.Errorf("(%v, %v)", got, err)
		}
	})

	for name, line := range map[string]string{
		"broken json":        `{"accession": `,
		"no accession":       `{"version": 1, "organism": "cchf", "unalignedNucleotideSequences": {"L": "A"}}`,
		"zero version":       `{"accession": "LOC_0001", "organism": "cchf", "unalignedNucleotideSequences": {"L": "A"}}`,
		"unknown organism":   `{"accession": "LOC_0001", "version": 1, "organism": "h5n1", "unalignedNucleotideSequences": {"L": "A"}}`,
		"without sequences":  `{"accession": "LOC_0001", "version": 1, "organism": "cchf"}`,
		"string version":     `{"accession": "LOC_0001", "version": "1", "organism": "cchf", "unalignedNucleotideSequences": {"L": "A"}}`,
		"second line is bad": "{\"accession\": \"LOC_0001\", \"version\": 1, \"organism\": \"cchf\", \"unalignedNucleotideSequences\": {\"L\": \"A\"}}\n[]",
	} {
		t.Run("it rejects: "+name, func(t *testing.T) {
			if got, err := ReadIntake(strings.NewReader(line), organisms, now); err == nil {
				t.Errorf("expected error, but %+v", got)
			}
		})
	}
}
