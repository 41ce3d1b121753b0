// Package sample submits one archive sample per sequence version.
package sample

import (
	"context"
	"errors"
	"fmt"

	"github.com/loculus-project/ena-deposition/pkg/db"
	"github.com/loculus-project/ena-deposition/pkg/deposition"
	"github.com/loculus-project/ena-deposition/pkg/domain"
	"github.com/loculus-project/ena-deposition/pkg/ena"
	"github.com/loculus-project/ena-deposition/pkg/loop/recurring"
)

// Coordinator moves sample rows READY -> SUBMITTING -> {SUBMITTED | HAS_ERRORS}.
type Coordinator struct {
	env       deposition.Env
	client    ena.Client
	organisms map[string]deposition.Organism
	mapping   Mapping

	// url of the host platform. Samples link back to their sequence entry there.
	website string
}

func New(
	env deposition.Env,
	client ena.Client,
	organisms map[string]deposition.Organism,
	mapping Mapping,
	website string,
) *Coordinator {
	return &Coordinator{
		env: env, client: client, organisms: organisms, mapping: mapping, website: website,
	}
}

// initial value for task
func Seed() deposition.Tally {
	return deposition.Tally{}
}

// Task for sample loop.
func Task(c *Coordinator) recurring.Task[deposition.Tally] {
	return func(ctx context.Context, t deposition.Tally) (deposition.Tally, bool, error) {
		rows, moved, err := c.Sweep(ctx)
		return t.Add(rows, moved), 0 < moved, err
	}
}

// Sweep submits READY samples one by one.
//
// It returns how many rows were found and how many of them were moved.
func (c *Coordinator) Sweep(ctx context.Context) (int, int, error) {
	ready, err := c.env.Store.Samples().Find(ctx, db.Eq(db.Sample.Status, domain.Ready))
	if err != nil {
		return 0, 0, err
	}
	moved := 0
	for _, s := range ready {
		ok, err := c.submit(ctx, s)
		if ok {
			moved += 1
		}
		if err != nil {
			return len(ready), moved, err
		}
	}
	return len(ready), moved, nil
}

// Alias is the alias of the sample of a sequence version.
func Alias(k domain.SequenceKey) string {
	return k.String()
}

// Sample builds the sample document of the sequence entry.
func (c *Coordinator) Sample(entry domain.IntakeEntry) (ena.Sample, error) {
	org, ok := c.organisms[entry.Organism]
	if !ok {
		return ena.Sample{}, fmt.Errorf("organism %q is not configured", entry.Organism)
	}
	description := fmt.Sprintf(
		"Automated upload of %s sequences submitted by %s", org.ScientificName, entry.CenterName,
	)
	s := ena.Sample{
		Alias:      Alias(entry.SequenceKey),
		CenterName: entry.CenterName,
		Title:      org.ScientificName + ": Genome sequencing",
		Name: ena.SampleName{
			TaxonID:        org.TaxonID,
			ScientificName: org.ScientificName,
		},
		Description: description,
		Attributes:  c.mapping.Apply(entry.Metadata),
	}
	if c.website != "" {
		s.Description += " from " + c.website
		s.Links = []ena.SampleLink{{URL: ena.URLLink{
			Label: "Loculus Sample URL",
			URL:   fmt.Sprintf("%s/seq/%s", c.website, entry.SequenceKey),
		}}}
	}
	return s, nil
}

func (c *Coordinator) transition(k domain.SequenceKey, from, to domain.Status) deposition.Transition {
	return deposition.Transition{
		Table: db.SampleTableName, Identity: k.String(),
		From: from.String(), To: to.String(),
		Kind:    domain.SampleKind,
		Settled: deposition.At(c.env.Store.Samples(), db.Sample.KeyOf(k), db.Sample.Status, to),
	}
}

func (c *Coordinator) entry(ctx context.Context, k domain.SequenceKey) (domain.IntakeEntry, error) {
	entries, err := c.env.Store.Intake().Find(ctx, db.Intake.KeyOf(k)...)
	if err != nil {
		return domain.IntakeEntry{}, err
	}
	if len(entries) != 1 {
		return domain.IntakeEntry{}, domain.Inconsistency{
			Table: db.IntakeTableName, Identity: k.String(),
			Reason: "sample exists without its sequence entry",
		}
	}
	return entries[0], nil
}

// submit claims s and submits it.
//
// It returns true when s has been claimed.
func (c *Coordinator) submit(ctx context.Context, s domain.SampleEntity) (bool, error) {
	entry, err := c.entry(ctx, s.SequenceKey)
	if err != nil {
		return false, err
	}

	samples := c.env.Store.Samples()
	key := db.Sample.KeyOf(s.SequenceKey)

	ok, err := c.env.Claim(
		ctx, c.transition(s.SequenceKey, domain.Ready, domain.Submitting),
		deposition.Move(
			samples, key, db.Sample.Status, domain.Ready, domain.Submitting,
			db.Set(db.Sample.StartedAt, c.env.Now()),
		),
	)
	if err != nil || !ok {
		return false, err
	}

	var doc ena.Document
	sample, err := c.Sample(entry)
	if err == nil {
		doc, err = ena.SampleDocument(sample)
	}
	if err != nil {
		return true, c.fail(ctx, s.SequenceKey, []string{err.Error()})
	}

	c.env.SavePayload(ctx, db.SampleTableName, Alias(s.SequenceKey), "sample.xml", doc.Body, "application/xml")

	receipt, err := c.client.Submit(ctx, doc)
	if err != nil {
		if ena.Recordable(err) {
			return true, c.fail(ctx, s.SequenceKey, ena.Messages(err))
		}
		return true, errors.Join(err, c.release(ctx, s.SequenceKey))
	}

	result, err := resultOf(receipt)
	if err != nil {
		return true, c.fail(ctx, s.SequenceKey, ena.Messages(err))
	}

	return true, c.env.Persist(
		ctx, c.transition(s.SequenceKey, domain.Submitting, domain.Submitted),
		deposition.Move(
			samples, key, db.Sample.Status, domain.Submitting, domain.Submitted,
			db.Set(db.Sample.Result, result),
			db.Set(db.Sample.FinishedAt, c.env.Now()),
		),
	)
}

func resultOf(r *ena.Receipt) (domain.SampleResult, error) {
	sample, biosample, err := r.SampleAccessions()
	if err != nil {
		return domain.SampleResult{}, err
	}
	submission, err := r.SubmissionAccession()
	if err != nil {
		return domain.SampleResult{}, err
	}
	return domain.SampleResult{
		EnaSampleAccession:     sample,
		BiosampleAccession:     biosample,
		EnaSubmissionAccession: submission,
	}, nil
}

func (c *Coordinator) fail(ctx context.Context, k domain.SequenceKey, messages []string) error {
	return c.env.Persist(
		ctx, c.transition(k, domain.Submitting, domain.HasErrors),
		deposition.Move(
			c.env.Store.Samples(), db.Sample.KeyOf(k),
			db.Sample.Status, domain.Submitting, domain.HasErrors,
			db.Set(db.Sample.Errors, messages),
			db.Set(db.Sample.FinishedAt, c.env.Now()),
		),
	)
}

// release puts a claimed row back to READY, when the archive could not be reached.
func (c *Coordinator) release(ctx context.Context, k domain.SequenceKey) error {
	return c.env.Persist(
		ctx, c.transition(k, domain.Submitting, domain.Ready),
		deposition.Move(
			c.env.Store.Samples(), db.Sample.KeyOf(k),
			db.Sample.Status, domain.Submitting, domain.Ready,
			db.Set(db.Sample.StartedAt, nil),
		),
	)
}
