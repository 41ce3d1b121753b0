// Package assembly submits genome assemblies and polls the archive until accessions are assigned.
package assembly

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/loculus-project/ena-deposition/pkg/db"
	"github.com/loculus-project/ena-deposition/pkg/deposition"
	"github.com/loculus-project/ena-deposition/pkg/domain"
	"github.com/loculus-project/ena-deposition/pkg/ena"
	"github.com/loculus-project/ena-deposition/pkg/loop/recurring"
)

// metadata fields describing how the sequence was assembled.
const (
	FieldPlatform = "sequencingInstrument"
	FieldProgram  = "consensusSequenceSoftwareName"
	FieldCoverage = "depthOfCoverage"
)

// Coordinator moves assembly rows
//
//	READY -> SUBMITTING -> WAITING -> {SUBMITTED | HAS_ERRORS}
//	                   \-> HAS_ERRORS
type Coordinator struct {
	env       deposition.Env
	client    ena.Client
	organisms map[string]deposition.Organism
	schedule  *Schedule
}

func New(
	env deposition.Env,
	client ena.Client,
	organisms map[string]deposition.Organism,
	schedule *Schedule,
) *Coordinator {
	return &Coordinator{env: env, client: client, organisms: organisms, schedule: schedule}
}

// initial value for task
func Seed() deposition.Tally {
	return deposition.Tally{}
}

// Task for assembly loop.
//
// Each sweep submits READY assemblies, then polls WAITING assemblies if the schedule is due.
func Task(c *Coordinator) recurring.Task[deposition.Tally] {
	return func(ctx context.Context, t deposition.Tally) (deposition.Tally, bool, error) {
		rows, moved, err := c.Submit(ctx)
		if err != nil {
			return t.Add(rows, moved), 0 < moved, err
		}
		prows, pmoved, err := c.Poll(ctx)
		return t.Add(rows+prows, moved+pmoved), 0 < moved+pmoved, err
	}
}

func (c *Coordinator) transition(k domain.SequenceKey, from, to domain.Status) deposition.Transition {
	return deposition.Transition{
		Table: db.AssemblyTableName, Identity: k.String(),
		From: from.String(), To: to.String(),
		Kind:    domain.AssemblyKind,
		Settled: deposition.At(c.env.Store.Assemblies(), db.Assembly.KeyOf(k), db.Assembly.Status, to),
	}
}

// Submit submits READY assemblies one by one.
func (c *Coordinator) Submit(ctx context.Context) (int, int, error) {
	ready, err := c.env.Store.Assemblies().Find(ctx, db.Eq(db.Assembly.Status, domain.Ready))
	if err != nil {
		return 0, 0, err
	}
	moved := 0
	for _, a := range ready {
		ok, err := c.submit(ctx, a)
		if ok {
			moved += 1
		}
		if err != nil {
			return len(ready), moved, err
		}
	}
	return len(ready), moved, nil
}

func inconsistent(table string, k fmt.Stringer, reason string) error {
	return domain.Inconsistency{Table: table, Identity: k.String(), Reason: reason}
}

// dependencies collects the rows an assembly depends on.
//
// They should be there: the tracker creates assemblies only after samples (and so projects) are SUBMITTED.
func (c *Coordinator) dependencies(ctx context.Context, k domain.SequenceKey) (
	domain.IntakeEntry, domain.ProjectResult, domain.SampleResult, error,
) {
	entries, err := c.env.Store.Intake().Find(ctx, db.Intake.KeyOf(k)...)
	if err != nil {
		return domain.IntakeEntry{}, domain.ProjectResult{}, domain.SampleResult{}, err
	}
	if len(entries) != 1 {
		return domain.IntakeEntry{}, domain.ProjectResult{}, domain.SampleResult{},
			inconsistent(db.IntakeTableName, k, "assembly exists without its sequence entry")
	}
	entry := entries[0]

	projects, err := c.env.Store.Projects().Find(ctx, db.Project.KeyOf(entry.ProjectKey())...)
	if err != nil {
		return domain.IntakeEntry{}, domain.ProjectResult{}, domain.SampleResult{}, err
	}
	if len(projects) != 1 || !projects[0].Status.Succeeded() || projects[0].Result == nil {
		return domain.IntakeEntry{}, domain.ProjectResult{}, domain.SampleResult{},
			inconsistent(db.ProjectTableName, entry.ProjectKey(), "assembly is to be submitted, but its project is not submitted")
	}

	samples, err := c.env.Store.Samples().Find(ctx, db.Sample.KeyOf(k)...)
	if err != nil {
		return domain.IntakeEntry{}, domain.ProjectResult{}, domain.SampleResult{}, err
	}
	if len(samples) != 1 || !samples[0].Status.Succeeded() || samples[0].Result == nil {
		return domain.IntakeEntry{}, domain.ProjectResult{}, domain.SampleResult{},
			inconsistent(db.SampleTableName, k, "assembly is to be submitted, but its sample is not submitted")
	}

	return entry, *projects[0].Result, *samples[0].Result, nil
}

// Assembly builds the assembly submission of the sequence entry.
//
// Segments are those the organism has and the entry has a sequence for.
func (c *Coordinator) Assembly(entry domain.IntakeEntry, p domain.ProjectResult, s domain.SampleResult) (ena.Assembly, error) {
	org, ok := c.organisms[entry.Organism]
	if !ok {
		return ena.Assembly{}, fmt.Errorf("organism %q is not configured", entry.Organism)
	}

	segments := []ena.Segment{}
	for _, name := range org.Segments {
		seq := entry.UnalignedSequences[name]
		if seq == nil || *seq == "" {
			continue
		}
		segments = append(segments, ena.Segment{Name: name, Sequence: *seq})
	}
	if len(segments) == 0 {
		return ena.Assembly{}, fmt.Errorf("%s has no sequenced segments", entry.SequenceKey)
	}

	meta := func(field, fallback string) string {
		if v, ok := entry.Metadata[field].(string); ok && v != "" {
			return v
		}
		if v, ok := entry.Metadata[field].(float64); ok {
			return fmt.Sprint(v)
		}
		return fallback
	}

	return ena.Assembly{
		Name:           entry.SequenceKey.String(),
		Study:          p.BioprojectAccession,
		Sample:         s.EnaSampleAccession,
		ScientificName: org.ScientificName,
		MoleculeType:   org.MoleculeType,
		Topology:       org.Topology,
		Description:    fmt.Sprintf("Original sequence submitted to Loculus with accession: %s", entry.SequenceKey),
		Coverage:       meta(FieldCoverage, "1"),
		Program:        meta(FieldProgram, "Unknown"),
		Platform:       meta(FieldPlatform, "Unknown"),
		Segments:       segments,
	}, nil
}

// submit claims a and submits it.
//
// It returns true when a has been claimed.
func (c *Coordinator) submit(ctx context.Context, a domain.AssemblyEntity) (bool, error) {
	entry, project, sample, err := c.dependencies(ctx, a.SequenceKey)
	if err != nil {
		return false, err
	}

	assemblies := c.env.Store.Assemblies()
	key := db.Assembly.KeyOf(a.SequenceKey)

	ok, err := c.env.Claim(
		ctx, c.transition(a.SequenceKey, domain.Ready, domain.Submitting),
		deposition.Move(
			assemblies, key, db.Assembly.Status, domain.Ready, domain.Submitting,
			db.Set(db.Assembly.StartedAt, c.env.Now()),
		),
	)
	if err != nil || !ok {
		return false, err
	}

	manifest, err := c.Assembly(entry, project, sample)
	if err != nil {
		return true, c.fail(ctx, a.SequenceKey, domain.Submitting, []string{err.Error()})
	}

	name := manifest.Name
	c.env.SavePayload(ctx, db.AssemblyTableName, name, "manifest.tsv", manifest.Manifest(), "text/tab-separated-values")
	c.env.SavePayload(ctx, db.AssemblyTableName, name, "chromosome_list.txt", manifest.ChromosomeList(), "text/plain")
	c.env.SavePayload(ctx, db.AssemblyTableName, name, "flatfile.embl", manifest.FlatFile(), "text/plain")

	erz, err := c.client.SubmitAssembly(ctx, manifest)
	if err != nil {
		if ena.Recordable(err) {
			return true, c.fail(ctx, a.SequenceKey, domain.Submitting, ena.Messages(err))
		}
		return true, errors.Join(err, c.release(ctx, a.SequenceKey))
	}

	result := domain.AssemblyResult{
		ErzAccession: erz,
		SegmentOrder: manifest.SegmentOrder(),
	}
	return true, c.env.Persist(
		ctx, c.transition(a.SequenceKey, domain.Submitting, domain.Waiting),
		deposition.Move(
			assemblies, key, db.Assembly.Status, domain.Submitting, domain.Waiting,
			db.Set(db.Assembly.Result, result),
		),
	)
}

// Poll checks WAITING assemblies, when the schedule is due.
//
// It returns how many rows were checked and how many of them were updated
// (including partial results stored while WAITING).
func (c *Coordinator) Poll(ctx context.Context) (int, int, error) {
	if !c.schedule.Due() {
		return 0, 0, nil
	}
	waiting, err := c.env.Store.Assemblies().Find(ctx, db.Eq(db.Assembly.Status, domain.Waiting))
	if err != nil {
		return 0, 0, err
	}
	moved := 0
	for _, a := range waiting {
		ok, err := c.poll(ctx, a)
		if ok {
			moved += 1
		}
		if err != nil {
			return len(waiting), moved, err
		}
	}
	return len(waiting), moved, nil
}

// Merge applies accessions in a process report to the result known so far.
//
// Chromosome accessions are assigned to segments in segment order. When their
// count does not match the segment order, they are not assigned.
func Merge(known domain.AssemblyResult, accs ena.Accessions) domain.AssemblyResult {
	next := known
	next.SegmentOrder = slices.Clone(known.SegmentOrder)
	next.InsdcAccessions = maps.Clone(known.InsdcAccessions)

	if accs.Genome != "" {
		next.GcaAccession = accs.Genome
	}
	if len(accs.Chromosomes) != 0 && len(accs.Chromosomes) == len(next.SegmentOrder) {
		if next.InsdcAccessions == nil {
			next.InsdcAccessions = map[string]string{}
		}
		for i, seg := range next.SegmentOrder {
			next.InsdcAccessions[seg] = accs.Chromosomes[i]
		}
	}
	return next
}

// poll checks an assembly. It returns true when the row is updated.
func (c *Coordinator) poll(ctx context.Context, a domain.AssemblyEntity) (bool, error) {
	if a.Result == nil || a.Result.ErzAccession == "" {
		return false, inconsistent(db.AssemblyTableName, a.SequenceKey, "WAITING without acknowledgement id")
	}
	report, err := c.client.AssemblyReport(ctx, a.Result.ErzAccession)
	if err != nil {
		if ena.Recordable(err) {
			return true, c.fail(ctx, a.SequenceKey, domain.Waiting, ena.Messages(err))
		}
		return false, err
	}
	if report.Failed() {
		msg := report.ProcessingError
		if msg == "" {
			msg = fmt.Sprintf("processing of %s has failed", a.Result.ErzAccession)
		}
		return true, c.fail(ctx, a.SequenceKey, domain.Waiting, []string{msg})
	}

	accs, err := report.Accessions()
	if err != nil {
		return true, c.fail(ctx, a.SequenceKey, domain.Waiting, ena.Messages(err))
	}
	if n := len(accs.Chromosomes); n != 0 && n != len(a.Result.SegmentOrder) {
		c.env.Log().Warnf(
			"%s: %d chromosome accessions for %d segments (%s). keep waiting.",
			a.SequenceKey, n, len(a.Result.SegmentOrder), report.Acc,
		)
	}

	next := Merge(*a.Result, accs)
	key := db.Assembly.KeyOf(a.SequenceKey)
	assemblies := c.env.Store.Assemblies()

	switch {
	case next.Complete():
		return true, c.env.Persist(
			ctx, c.transition(a.SequenceKey, domain.Waiting, domain.Submitted),
			deposition.Move(
				assemblies, key, db.Assembly.Status, domain.Waiting, domain.Submitted,
				db.Set(db.Assembly.Result, next),
				db.Set(db.Assembly.FinishedAt, c.env.Now()),
			),
		)
	case !next.Equal(a.Result):
		return true, c.env.Persist(
			ctx, c.transition(a.SequenceKey, domain.Waiting, domain.Waiting),
			deposition.Move(
				assemblies, key, db.Assembly.Status, domain.Waiting, domain.Waiting,
				db.Set(db.Assembly.Result, next),
			),
		)
	}
	return false, nil
}

func (c *Coordinator) fail(ctx context.Context, k domain.SequenceKey, from domain.Status, messages []string) error {
	return c.env.Persist(
		ctx, c.transition(k, from, domain.HasErrors),
		deposition.Move(
			c.env.Store.Assemblies(), db.Assembly.KeyOf(k),
			db.Assembly.Status, from, domain.HasErrors,
			db.Set(db.Assembly.Errors, messages),
			db.Set(db.Assembly.FinishedAt, c.env.Now()),
		),
	)
}

// release puts a claimed row back to READY, when the archive could not be reached.
func (c *Coordinator) release(ctx context.Context, k domain.SequenceKey) error {
	return c.env.Persist(
		ctx, c.transition(k, domain.Submitting, domain.Ready),
		deposition.Move(
			c.env.Store.Assemblies(), db.Assembly.KeyOf(k),
			db.Assembly.Status, domain.Submitting, domain.Ready,
			db.Set(db.Assembly.StartedAt, nil),
		),
	)
}
