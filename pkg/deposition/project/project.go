// Package project submits one archive project per (group, organism).
package project

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

// Coordinator moves project rows READY -> SUBMITTING -> {SUBMITTED | HAS_ERRORS}.
type Coordinator struct {
	env       deposition.Env
	client    ena.Client
	organisms map[string]deposition.Organism

	// url of the host platform, mentioned in project descriptions.
	website string
}

func New(
	env deposition.Env,
	client ena.Client,
	organisms map[string]deposition.Organism,
	website string,
) *Coordinator {
	return &Coordinator{env: env, client: client, organisms: organisms, website: website}
}

// initial value for task
func Seed() deposition.Tally {
	return deposition.Tally{}
}

// Task for project loop.
//
// Each sweep submits every READY project.
func Task(c *Coordinator) recurring.Task[deposition.Tally] {
	return func(ctx context.Context, t deposition.Tally) (deposition.Tally, bool, error) {
		rows, moved, err := c.Sweep(ctx)
		return t.Add(rows, moved), 0 < moved, err
	}
}

// Sweep submits READY projects one by one.
//
// It returns how many rows were found and how many of them were moved.
// An error aborts the sweep. Rows not processed yet are left for the next sweep.
func (c *Coordinator) Sweep(ctx context.Context) (int, int, error) {
	ready, err := c.env.Store.Projects().Find(ctx, db.Eq(db.Project.Status, domain.Ready))
	if err != nil {
		return 0, 0, err
	}
	moved := 0
	for _, p := range ready {
		ok, err := c.submit(ctx, p)
		if ok {
			moved += 1
		}
		if err != nil {
			return len(ready), moved, err
		}
	}
	return len(ready), moved, nil
}

// Alias is the alias of the project of (group, organism). It is unique in the submitter account.
func Alias(k domain.ProjectKey) string {
	return fmt.Sprintf("%d:%s", k.GroupID, k.Organism)
}

// Project builds the project document of p.
func (c *Coordinator) Project(p domain.ProjectEntity) (ena.Project, error) {
	org, ok := c.organisms[p.Organism]
	if !ok {
		return ena.Project{}, fmt.Errorf("organism %q is not configured", p.Organism)
	}
	description := fmt.Sprintf(
		"Automated upload of %s sequences submitted by %s", org.ScientificName, p.CenterName,
	)
	if c.website != "" {
		description += " from " + c.website
	}
	return ena.Project{
		Alias:       Alias(p.ProjectKey),
		CenterName:  p.CenterName,
		Name:        org.ScientificName,
		Title:       org.ScientificName + ": Genome sequencing",
		Description: description,
		Submission: ena.SubmissionProject{
			Organism: &ena.Organism{
				TaxonID:        org.TaxonID,
				ScientificName: org.ScientificName,
			},
		},
	}, nil
}

func (c *Coordinator) transition(k domain.ProjectKey, from, to domain.Status) deposition.Transition {
	return deposition.Transition{
		Table: db.ProjectTableName, Identity: k.String(),
		From: from.String(), To: to.String(),
		Kind:    domain.ProjectKind,
		Settled: deposition.At(c.env.Store.Projects(), db.Project.KeyOf(k), db.Project.Status, to),
	}
}

// submit claims p and submits it.
//
// It returns true when p has been claimed.
func (c *Coordinator) submit(ctx context.Context, p domain.ProjectEntity) (bool, error) {
	projects := c.env.Store.Projects()
	key := db.Project.KeyOf(p.ProjectKey)

	ok, err := c.env.Claim(
		ctx, c.transition(p.ProjectKey, domain.Ready, domain.Submitting),
		deposition.Move(
			projects, key, db.Project.Status, domain.Ready, domain.Submitting,
			db.Set(db.Project.StartedAt, c.env.Now()),
		),
	)
	if err != nil || !ok {
		return false, err
	}

	var doc ena.Document
	proj, err := c.Project(p)
	if err == nil {
		doc, err = ena.ProjectDocument(proj)
	}
	if err != nil {
		return true, c.fail(ctx, p.ProjectKey, []string{err.Error()})
	}

	c.env.SavePayload(ctx, db.ProjectTableName, Alias(p.ProjectKey), "project.xml", doc.Body, "application/xml")

	receipt, err := c.client.Submit(ctx, doc)
	if err != nil {
		if ena.Recordable(err) {
			return true, c.fail(ctx, p.ProjectKey, ena.Messages(err))
		}
		return true, errors.Join(err, c.release(ctx, p.ProjectKey))
	}

	result, err := resultOf(receipt)
	if err != nil {
		return true, c.fail(ctx, p.ProjectKey, ena.Messages(err))
	}

	return true, c.env.Persist(
		ctx, c.transition(p.ProjectKey, domain.Submitting, domain.Submitted),
		deposition.Move(
			projects, key, db.Project.Status, domain.Submitting, domain.Submitted,
			db.Set(db.Project.Result, result),
			db.Set(db.Project.FinishedAt, c.env.Now()),
		),
	)
}

func resultOf(r *ena.Receipt) (domain.ProjectResult, error) {
	project, err := r.ProjectAccession()
	if err != nil {
		return domain.ProjectResult{}, err
	}
	submission, err := r.SubmissionAccession()
	if err != nil {
		return domain.ProjectResult{}, err
	}
	return domain.ProjectResult{
		BioprojectAccession:    project,
		EnaSubmissionAccession: submission,
	}, nil
}

func (c *Coordinator) fail(ctx context.Context, k domain.ProjectKey, messages []string) error {
	return c.env.Persist(
		ctx, c.transition(k, domain.Submitting, domain.HasErrors),
		deposition.Move(
			c.env.Store.Projects(), db.Project.KeyOf(k),
			db.Project.Status, domain.Submitting, domain.HasErrors,
			db.Set(db.Project.Errors, messages),
			db.Set(db.Project.FinishedAt, c.env.Now()),
		),
	)
}

// release puts a claimed row back to READY, when the archive could not be reached.
func (c *Coordinator) release(ctx context.Context, k domain.ProjectKey) error {
	return c.env.Persist(
		ctx, c.transition(k, domain.Submitting, domain.Ready),
		deposition.Move(
			c.env.Store.Projects(), db.Project.KeyOf(k),
			db.Project.Status, domain.Submitting, domain.Ready,
			db.Set(db.Project.StartedAt, nil),
		),
	)
}
