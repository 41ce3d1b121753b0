package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	configs "github.com/loculus-project/ena-deposition/pkg/configs/deposition"
	"github.com/loculus-project/ena-deposition/pkg/domain"
	"github.com/spf13/cobra"
)

// IntakeRecord is a line of intake files.
type IntakeRecord struct {
	Accession          string             `json:"accession"`
	Version            int64              `json:"version"`
	Organism           string             `json:"organism"`
	GroupID            int64              `json:"groupId"`
	CenterName         string             `json:"centerName"`
	Metadata           map[string]any     `json:"metadata"`
	UnalignedSequences map[string]*string `json:"unalignedNucleotideSequences"`
}

// ReadIntake reads newline delimited JSON of IntakeRecord, as READY_TO_SUBMIT entries.
func ReadIntake(r io.Reader, organisms map[string]bool, now time.Time) ([]domain.IntakeEntry, error) {
	dec := json.NewDecoder(r)
	entries := []domain.IntakeEntry{}
	for n := 1; ; n++ {
		var rec IntakeRecord
		if err := dec.Decode(&rec); errors.Is(err, io.EOF) {
			return entries, nil
		} else if err != nil {
			return nil, fmt.Errorf("record #%d: %w", n, err)
		}

		switch {
		case rec.Accession == "" || rec.Version <= 0:
			return nil, fmt.Errorf("record #%d: accession and positive version are required", n)
		case !organisms[rec.Organism]:
			return nil, fmt.Errorf("record #%d (%s.%d): organism %q is not configured", n, rec.Accession, rec.Version, rec.Organism)
		case len(rec.UnalignedSequences) == 0:
			return nil, fmt.Errorf("record #%d (%s.%d): no sequences", n, rec.Accession, rec.Version)
		}
		metadata := rec.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		entries = append(entries, domain.IntakeEntry{
			SequenceKey:        domain.SequenceKey{Accession: rec.Accession, Version: rec.Version},
			Organism:           rec.Organism,
			GroupID:            rec.GroupID,
			CenterName:         rec.CenterName,
			Metadata:           metadata,
			UnalignedSequences: rec.UnalignedSequences,
			Status:             domain.ReadyToSubmit,
			StartedAt:          now,
		})
	}
}

func IntakeCmd(g *GlobalFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "intake",
		Short: "Insert sequence entries to be submitted",
		Long: `Insert sequence entries from a newline delimited JSON file, as READY_TO_SUBMIT.

Each line is an object like:
  {"accession": "LOC_0001", "version": 1, "organism": "ebola-zaire", "groupId": 7,
   "centerName": "...", "metadata": {...}, "unalignedNucleotideSequences": {"main": "ACGT..."}}

Entries which are already in the database are skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			conf, err := configs.LoadConfig(g.Config)
			if err != nil {
				return fmt.Errorf("can not read configuration: %w", err)
			}

			in := cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			organisms := map[string]bool{}
			for name := range conf.Organisms() {
				organisms[name] = true
			}
			entries, err := ReadIntake(in, organisms, time.Now().UTC())
			if err != nil {
				return err
			}

			store, err := OpenStore(ctx, conf.Database())
			if err != nil {
				return err
			}
			defer store.Close()

			inserted, skipped := 0, 0
			for _, e := range entries {
				err := store.Intake().Insert(ctx, e)
				switch {
				case err == nil:
					inserted += 1
				case errors.Is(err, domain.ErrDuplicate):
					skipped += 1
				default:
					return fmt.Errorf("%s: %w", e.SequenceKey, err)
				}
			}
			cmd.Printf("inserted: %d, skipped (already exist): %d\n", inserted, skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", `NDJSON file of entries. "-" for stdin`)
	return cmd
}
