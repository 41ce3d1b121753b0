// Package tracker folds project, sample and assembly outcomes into the aggregate status of
// sequence entries, and reports accessions back to the host platform.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/loculus-project/ena-deposition/pkg/db"
	"github.com/loculus-project/ena-deposition/pkg/deposition"
	"github.com/loculus-project/ena-deposition/pkg/domain"
	"github.com/loculus-project/ena-deposition/pkg/loculus"
	"github.com/loculus-project/ena-deposition/pkg/loop/recurring"
)

// Kinds are child kinds, in the order they are submitted.
var Kinds = []domain.Kind{domain.ProjectKind, domain.SampleKind, domain.AssemblyKind}

type Tracker struct {
	env     deposition.Env
	loculus loculus.Client
}

func New(env deposition.Env, client loculus.Client) *Tracker {
	return &Tracker{env: env, loculus: client}
}

// initial value for task
func Seed() deposition.Tally {
	return deposition.Tally{}
}

// Task for tracker loop.
func Task(t *Tracker) recurring.Task[deposition.Tally] {
	return func(ctx context.Context, tally deposition.Tally) (deposition.Tally, bool, error) {
		rows, moved, err := t.Sweep(ctx)
		return tally.Add(rows, moved), 0 < moved, err
	}
}

// Sweep runs "start" and "update" for each child kind, then pushes back external metadata.
func (t *Tracker) Sweep(ctx context.Context) (int, int, error) {
	rows, moved := 0, 0
	for _, kind := range Kinds {
		r, m, err := t.Start(ctx, kind)
		rows, moved = rows+r, moved+m
		if err != nil {
			return rows, moved, err
		}
		r, m, err = t.Update(ctx, kind)
		rows, moved = rows+r, moved+m
		if err != nil {
			return rows, moved, err
		}
	}
	r, m, err := t.PushBack(ctx)
	return rows + r, moved + m, err
}

// Start finds entries ready for a child of kind, and flags them.
//
// If the child exists and is SUBMITTED, the entry is flagged as "kind submitted".
// Otherwise the child is created (if missing) in READY, and the entry is flagged as "submitting kind".
func (t *Tracker) Start(ctx context.Context, kind domain.Kind) (int, int, error) {
	entries, err := t.env.Store.Intake().Find(ctx, db.Eq(db.Intake.Status, kind.ReadyFor()))
	if err != nil {
		return 0, 0, err
	}
	moved := 0
	for _, e := range entries {
		status, found, err := t.child(ctx, kind, e)
		if err != nil {
			return len(entries), moved, err
		}

		next := kind.Submitting()
		switch {
		case found && status.Succeeded():
			next = kind.Submitted()
		case !found:
			if err := t.create(ctx, kind, e); err != nil {
				return len(entries), moved, err
			}
		}

		ok, err := t.advance(ctx, e, next)
		if ok {
			moved += 1
		}
		if err != nil {
			return len(entries), moved, err
		}
	}
	return len(entries), moved, nil
}

// Update finds entries flagged as "submitting kind", and flags them as "kind submitted"
// when the child is SUBMITTED.
//
// A flagged entry without its child is inconsistent.
func (t *Tracker) Update(ctx context.Context, kind domain.Kind) (int, int, error) {
	entries, err := t.env.Store.Intake().Find(ctx, db.Eq(db.Intake.Status, kind.Submitting()))
	if err != nil {
		return 0, 0, err
	}
	moved := 0
	for _, e := range entries {
		status, found, err := t.child(ctx, kind, e)
		if err != nil {
			return len(entries), moved, err
		}
		if !found {
			return len(entries), moved, domain.Inconsistency{
				Table: db.IntakeTableName, Identity: e.SequenceKey.String(),
				Reason: fmt.Sprintf("%s is flagged, but %s is missing", kind.Submitting(), kind),
			}
		}
		if !status.Succeeded() {
			continue
		}
		ok, err := t.advance(ctx, e, kind.Submitted())
		if ok {
			moved += 1
		}
		if err != nil {
			return len(entries), moved, err
		}
	}
	return len(entries), moved, nil
}

func statusOf[R any](rows []R, err error, status func(R) domain.Status) (domain.Status, bool, error) {
	if err != nil {
		return "", false, err
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return status(rows[0]), true, nil
}

// child returns the status of the child of kind for e, and whether it exists.
func (t *Tracker) child(ctx context.Context, kind domain.Kind, e domain.IntakeEntry) (domain.Status, bool, error) {
	switch kind {
	case domain.ProjectKind:
		rows, err := t.env.Store.Projects().Find(ctx, db.Project.KeyOf(e.ProjectKey())...)
		return statusOf(rows, err, func(p domain.ProjectEntity) domain.Status { return p.Status })
	case domain.SampleKind:
		rows, err := t.env.Store.Samples().Find(ctx, db.Sample.KeyOf(e.SequenceKey)...)
		return statusOf(rows, err, func(s domain.SampleEntity) domain.Status { return s.Status })
	case domain.AssemblyKind:
		rows, err := t.env.Store.Assemblies().Find(ctx, db.Assembly.KeyOf(e.SequenceKey)...)
		return statusOf(rows, err, func(a domain.AssemblyEntity) domain.Status { return a.Status })
	}
	return "", false, fmt.Errorf("unknown kind: %s", kind)
}

// create inserts a READY child of kind for e.
//
// A duplicate is not an error: someone else has created it.
func (t *Tracker) create(ctx context.Context, kind domain.Kind, e domain.IntakeEntry) error {
	var err error
	switch kind {
	case domain.ProjectKind:
		err = t.env.Store.Projects().Insert(ctx, domain.ProjectEntity{
			ProjectKey: e.ProjectKey(), CenterName: e.CenterName, Status: domain.Ready,
		})
	case domain.SampleKind:
		err = t.env.Store.Samples().Insert(ctx, domain.SampleEntity{
			SequenceKey: e.SequenceKey, Status: domain.Ready,
		})
	case domain.AssemblyKind:
		err = t.env.Store.Assemblies().Insert(ctx, domain.AssemblyEntity{
			SequenceKey: e.SequenceKey, Status: domain.Ready,
		})
	default:
		return fmt.Errorf("unknown kind: %s", kind)
	}
	if errors.Is(err, domain.ErrDuplicate) {
		t.env.Log().Debugf("%s for %s has been created by someone else", kind, e.SequenceKey)
		return nil
	}
	return err
}

func (t *Tracker) transition(e domain.IntakeEntry, to domain.SubmissionStatus) deposition.Transition {
	return deposition.Transition{
		Table: db.IntakeTableName, Identity: e.SequenceKey.String(),
		From: e.Status.String(), To: to.String(),
		Settled: deposition.At(t.env.Store.Intake(), db.Intake.KeyOf(e.SequenceKey), db.Intake.Status, to),
	}
}

// advance moves the aggregate status of e forward, once.
//
// Moving backward is refused. SubmittedAll and later need every child SUBMITTED.
func (t *Tracker) advance(ctx context.Context, e domain.IntakeEntry, to domain.SubmissionStatus) (bool, error) {
	if !e.Status.CanAdvanceTo(to) {
		return false, fmt.Errorf("%w: %s", domain.ErrRegression, t.transition(e, to))
	}
	if e.Status == to {
		return false, nil
	}
	if domain.SubmittedAll.CanAdvanceTo(to) {
		if err := t.allSubmitted(ctx, e); err != nil {
			return false, err
		}
	}
	return t.env.Claim(
		ctx, t.transition(e, to),
		deposition.Move(t.env.Store.Intake(), db.Intake.KeyOf(e.SequenceKey), db.Intake.Status, e.Status, to),
	)
}

func (t *Tracker) allSubmitted(ctx context.Context, e domain.IntakeEntry) error {
	for _, kind := range Kinds {
		status, found, err := t.child(ctx, kind, e)
		if err != nil {
			return err
		}
		if !found || !status.Succeeded() {
			return domain.Inconsistency{
				Table: db.IntakeTableName, Identity: e.SequenceKey.String(),
				Reason: fmt.Sprintf("%s is not submitted (status: %q)", kind, status),
			}
		}
	}
	return nil
}

// ExternalMetadata composes the accessions reported back to the host platform.
func ExternalMetadata(
	p domain.ProjectResult, s domain.SampleResult, a domain.AssemblyResult,
) map[string]any {
	m := map[string]any{
		"bioprojectAccession": p.BioprojectAccession,
		"biosampleAccession":  s.BiosampleAccession,
		"gcaAccession":        a.GcaAccession,
	}
	segmented := !(len(a.SegmentOrder) == 1 && a.SegmentOrder[0] == "main")
	for _, seg := range a.SegmentOrder {
		acc, ok := a.InsdcAccessions[seg]
		if !ok {
			continue
		}
		if segmented {
			m["insdcAccessionBase_"+seg] = acc
		} else {
			m["insdcAccessionBase"] = acc
		}
	}
	return m
}

func (t *Tracker) compose(ctx context.Context, e domain.IntakeEntry) (map[string]any, error) {
	missing := func(table string, identity fmt.Stringer) error {
		return domain.Inconsistency{
			Table: table, Identity: identity.String(),
			Reason: fmt.Sprintf("%s is %s, but the result is missing", e.SequenceKey, e.Status),
		}
	}
	projects, err := t.env.Store.Projects().Find(ctx, db.Project.KeyOf(e.ProjectKey())...)
	if err != nil {
		return nil, err
	}
	if len(projects) != 1 || projects[0].Result == nil {
		return nil, missing(db.ProjectTableName, e.ProjectKey())
	}
	samples, err := t.env.Store.Samples().Find(ctx, db.Sample.KeyOf(e.SequenceKey)...)
	if err != nil {
		return nil, err
	}
	if len(samples) != 1 || samples[0].Result == nil {
		return nil, missing(db.SampleTableName, e.SequenceKey)
	}
	assemblies, err := t.env.Store.Assemblies().Find(ctx, db.Assembly.KeyOf(e.SequenceKey)...)
	if err != nil {
		return nil, err
	}
	if len(assemblies) != 1 || !assemblies[0].Result.Complete() {
		return nil, missing(db.AssemblyTableName, e.SequenceKey)
	}
	return ExternalMetadata(*projects[0].Result, *samples[0].Result, *assemblies[0].Result), nil
}

// PushBack sends accessions of SUBMITTED_ALL entries (and entries failed to be sent before)
// to the host platform, organism by organism.
//
// On success entries become SENT_TO_LOCULUS, otherwise HAS_ERRORS_EXT_METADATA_UPLOAD.
// Failure of the host platform does not abort the sweep.
func (t *Tracker) PushBack(ctx context.Context) (int, int, error) {
	entries, err := t.env.Store.Intake().Find(
		ctx, db.In(db.Intake.Status, domain.SubmittedAll, domain.HasErrorsExtMetadataUpload),
	)
	if err != nil {
		return 0, 0, err
	}

	byOrganism := map[string][]domain.IntakeEntry{}
	for _, e := range entries {
		byOrganism[e.Organism] = append(byOrganism[e.Organism], e)
	}
	organisms := make([]string, 0, len(byOrganism))
	for o := range byOrganism {
		organisms = append(organisms, o)
	}
	slices.Sort(organisms)

	moved := 0
	for _, organism := range organisms {
		group := byOrganism[organism]
		payload := make([]loculus.ExternalMetadata, 0, len(group))
		for _, e := range group {
			m, err := t.compose(ctx, e)
			if err != nil {
				return len(entries), moved, err
			}
			payload = append(payload, loculus.ExternalMetadata{
				Accession: e.Accession, Version: e.Version, ExternalMetadata: m,
			})
		}

		perr := t.loculus.SubmitExternalMetadata(ctx, organism, payload)
		if perr != nil {
			t.env.Log().Errorf("external metadata of %d entries of %s: %s", len(group), organism, perr)
		}
		for i, e := range group {
			ok, err := t.settle(ctx, e, payload[i].ExternalMetadata, perr)
			if ok {
				moved += 1
			}
			if err != nil {
				return len(entries), moved, err
			}
		}
	}
	return len(entries), moved, nil
}

// settle records the outcome of the push-back of e.
func (t *Tracker) settle(ctx context.Context, e domain.IntakeEntry, sent map[string]any, perr error) (bool, error) {
	intake := t.env.Store.Intake()
	key := db.Intake.KeyOf(e.SequenceKey)

	if perr != nil {
		if e.Status == domain.HasErrorsExtMetadataUpload {
			return false, nil
		}
		return true, t.env.Persist(
			ctx, t.transition(e, domain.HasErrorsExtMetadataUpload),
			deposition.Move(
				intake, key, db.Intake.Status, e.Status, domain.HasErrorsExtMetadataUpload,
				db.Set(db.Intake.Errors, []string{perr.Error()}),
			),
		)
	}

	return true, t.env.Persist(
		ctx, t.transition(e, domain.SentToLoculus),
		deposition.Move(
			intake, key, db.Intake.Status, e.Status, domain.SentToLoculus,
			db.Set(db.Intake.ExternalMetadata, sent),
			db.Set(db.Intake.Errors, nil),
			db.Set(db.Intake.FinishedAt, t.env.Now()),
		),
	)
}
