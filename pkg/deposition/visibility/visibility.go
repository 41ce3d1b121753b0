// Package visibility stamps when submitted accessions become publicly visible,
// on the archive and on its public mirror.
package visibility

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/loculus-project/ena-deposition/pkg/db"
	"github.com/loculus-project/ena-deposition/pkg/deposition"
	"github.com/loculus-project/ena-deposition/pkg/domain"
	"github.com/loculus-project/ena-deposition/pkg/loop/recurring"
	vis "github.com/loculus-project/ena-deposition/pkg/visibility"
)

const DefaultCacheSize = 4096

// Checker probes accessions of SUBMITTED rows which are not stamped yet.
type Checker struct {
	env       deposition.Env
	prober    vis.Prober
	cacheSize int
}

func New(env deposition.Env, prober vis.Prober, cacheSize int) *Checker {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	return &Checker{env: env, prober: prober, cacheSize: cacheSize}
}

// initial value for task
func Seed() deposition.Tally {
	return deposition.Tally{}
}

// Task for visibility loop.
func Task(c *Checker) recurring.Task[deposition.Tally] {
	return func(ctx context.Context, t deposition.Tally) (deposition.Tally, bool, error) {
		rows, stamped, err := c.Sweep(ctx)
		return t.Add(rows, stamped), 0 < stamped, err
	}
}

// sweep is the state of one sweep.
type sweep struct {
	*Checker
	cache *lru.Cache[string, bool]
	now   time.Time
}

// check is a (source, target) pair over a table.
type check[R any] struct {
	source vis.Source
	target vis.Target
	table  string

	find       func(ctx context.Context) ([]R, error)
	identity   func(R) string
	accessions func(R) []string

	// compare-and-update setting the visibility timestamp, if it is still unset.
	stamp func(ctx context.Context, r R, at time.Time) (int64, error)
}

// Sweep runs every check once.
//
// The lookup cache lives only in this sweep.
// It returns how many rows were examined and how many of them were stamped.
func (c *Checker) Sweep(ctx context.Context) (int, int, error) {
	cache, err := lru.New[string, bool](c.cacheSize)
	if err != nil {
		return 0, 0, err
	}
	s := &sweep{Checker: c, cache: cache, now: c.env.Now()}

	rows, stamped := 0, 0
	tally := func(r, st int, err error) error {
		rows, stamped = rows+r, stamped+st
		return err
	}

	for _, source := range []vis.Source{vis.ENA, vis.NCBI} {
		if err := tally(run(ctx, s, projectCheck(c.env.Store, source))); err != nil {
			return rows, stamped, err
		}
		if err := tally(run(ctx, s, sampleCheck(c.env.Store, source))); err != nil {
			return rows, stamped, err
		}
		if err := tally(run(ctx, s, nucleotideCheck(c.env.Store, source))); err != nil {
			return rows, stamped, err
		}
		if err := tally(run(ctx, s, genomeCheck(c.env.Store, source))); err != nil {
			return rows, stamped, err
		}
	}
	return rows, stamped, nil
}

// cacheKey drops the version suffix of accessions, e.g. "GCA_000001.1" -> "GCA_000001".
func cacheKey(source vis.Source, target vis.Target, accession string) string {
	base, _, _ := strings.Cut(accession, ".")
	return fmt.Sprintf("%s/%s/%s", source, target, base)
}

// visible probes an accession, consulting the cache.
//
// Probe errors are logged and counted as "not visible". They are not cached.
func (s *sweep) visible(ctx context.Context, source vis.Source, target vis.Target, accession string) bool {
	key := cacheKey(source, target, accession)
	if v, ok := s.cache.Get(key); ok {
		s.env.Metrics.Probe(string(source), string(target), true, v)
		return v
	}
	v, err := s.prober.Visible(ctx, source, target, accession)
	if err != nil {
		s.env.Log().Warnf("probe %s %s %s: %s", source, target, accession, err)
		return false
	}
	s.cache.Add(key, v)
	s.env.Metrics.Probe(string(source), string(target), false, v)
	return v
}

func run[R any](ctx context.Context, s *sweep, c check[R]) (int, int, error) {
	rows, err := c.find(ctx)
	if err != nil {
		return 0, 0, err
	}
	stamped := 0
	for _, r := range rows {
		accs := c.accessions(r)
		if len(accs) == 0 {
			continue
		}
		all := true
		for _, acc := range accs {
			if !s.visible(ctx, c.source, c.target, acc) {
				all = false
				break
			}
		}
		if !all {
			continue
		}

		t := deposition.Transition{
			Table: c.table, Identity: c.identity(r),
			From: "invisible", To: fmt.Sprintf("visible on %s (%s)", c.source, c.target),
		}
		ok, err := s.env.Claim(ctx, t, func(ctx context.Context) (int64, error) {
			return c.stamp(ctx, r, s.now)
		})
		if err != nil {
			return len(rows), stamped, err
		}
		if ok {
			stamped += 1
			s.env.Log().Infof("%s %s is visible on %s", c.table, c.identity(r), c.source)
		}
	}
	return len(rows), stamped, nil
}

// guard is a stamp field and its value as read.
type guard struct {
	field db.Column
	value *time.Time
}

// unchanged returns conditions holding while no stamp has been set since the row was read.
func unchanged(gs ...guard) []db.Cond {
	conds := []db.Cond{}
	for _, g := range gs {
		if g.value == nil {
			conds = append(conds, db.IsNull(g.field))
		}
	}
	return conds
}

func stampOf(source vis.Source, ena, ncbi **time.Time) **time.Time {
	if source == vis.NCBI {
		return ncbi
	}
	return ena
}

func projectCheck(store db.Store, source vis.Source) check[domain.ProjectEntity] {
	field := db.Project.EnaVisible
	if source == vis.NCBI {
		field = db.Project.NcbiVisible
	}
	table := store.Projects()
	return check[domain.ProjectEntity]{
		source: source, target: vis.Project, table: db.ProjectTableName,
		find: func(ctx context.Context) ([]domain.ProjectEntity, error) {
			return table.Find(ctx, db.Eq(db.Project.Status, domain.Submitted), db.IsNull(field))
		},
		identity: func(p domain.ProjectEntity) string { return p.ProjectKey.String() },
		accessions: func(p domain.ProjectEntity) []string {
			if p.Result == nil || p.Result.BioprojectAccession == "" {
				return nil
			}
			return []string{p.Result.BioprojectAccession}
		},
		stamp: func(ctx context.Context, p domain.ProjectEntity, at time.Time) (int64, error) {
			r := *p.Result
			where := append(db.Project.KeyOf(p.ProjectKey), db.Eq(db.Project.Status, domain.Submitted))
			where = append(where, unchanged(
				guard{db.Project.EnaVisible, r.EnaFirstPubliclyVisible},
				guard{db.Project.NcbiVisible, r.NcbiFirstPubliclyVisible},
			)...)
			*stampOf(source, &r.EnaFirstPubliclyVisible, &r.NcbiFirstPubliclyVisible) = &at
			return table.Update(ctx, where, db.Set(db.Project.Result, r))
		},
	}
}

func sampleCheck(store db.Store, source vis.Source) check[domain.SampleEntity] {
	field := db.Sample.EnaVisible
	if source == vis.NCBI {
		field = db.Sample.NcbiVisible
	}
	table := store.Samples()
	return check[domain.SampleEntity]{
		source: source, target: vis.Sample, table: db.SampleTableName,
		find: func(ctx context.Context) ([]domain.SampleEntity, error) {
			return table.Find(ctx, db.Eq(db.Sample.Status, domain.Submitted), db.IsNull(field))
		},
		identity: func(s domain.SampleEntity) string { return s.SequenceKey.String() },
		accessions: func(s domain.SampleEntity) []string {
			if s.Result == nil {
				return nil
			}
			// the mirror knows samples by their biosample accession.
			acc := s.Result.EnaSampleAccession
			if source == vis.NCBI {
				acc = s.Result.BiosampleAccession
			}
			if acc == "" {
				return nil
			}
			return []string{acc}
		},
		stamp: func(ctx context.Context, s domain.SampleEntity, at time.Time) (int64, error) {
			r := *s.Result
			where := append(db.Sample.KeyOf(s.SequenceKey), db.Eq(db.Sample.Status, domain.Submitted))
			where = append(where, unchanged(
				guard{db.Sample.EnaVisible, r.EnaFirstPubliclyVisible},
				guard{db.Sample.NcbiVisible, r.NcbiFirstPubliclyVisible},
			)...)
			*stampOf(source, &r.EnaFirstPubliclyVisible, &r.NcbiFirstPubliclyVisible) = &at
			return table.Update(ctx, where, db.Set(db.Sample.Result, r))
		},
	}
}

func assemblyGuards(r domain.AssemblyResult) []db.Cond {
	return unchanged(
		guard{db.Assembly.EnaNucleotideVisible, r.EnaNucleotideFirstPubliclyVisible},
		guard{db.Assembly.NcbiNucleotideVisible, r.NcbiNucleotideFirstPubliclyVisible},
		guard{db.Assembly.EnaGcaVisible, r.EnaGcaFirstPubliclyVisible},
		guard{db.Assembly.NcbiGcaVisible, r.NcbiGcaFirstPubliclyVisible},
	)
}

func assemblyCheck(
	store db.Store, source vis.Source, target vis.Target, field db.Column,
	accessions func(*domain.AssemblyResult) []string,
	stamp func(*domain.AssemblyResult) **time.Time,
) check[domain.AssemblyEntity] {
	table := store.Assemblies()
	return check[domain.AssemblyEntity]{
		source: source, target: target, table: db.AssemblyTableName,
		find: func(ctx context.Context) ([]domain.AssemblyEntity, error) {
			return table.Find(ctx, db.Eq(db.Assembly.Status, domain.Submitted), db.IsNull(field))
		},
		identity: func(a domain.AssemblyEntity) string { return a.SequenceKey.String() },
		accessions: func(a domain.AssemblyEntity) []string {
			if a.Result == nil {
				return nil
			}
			return accessions(a.Result)
		},
		stamp: func(ctx context.Context, a domain.AssemblyEntity, at time.Time) (int64, error) {
			r := *a.Result
			where := append(db.Assembly.KeyOf(a.SequenceKey), db.Eq(db.Assembly.Status, domain.Submitted))
			where = append(where, assemblyGuards(r)...)
			*stamp(&r) = &at
			return table.Update(ctx, where, db.Set(db.Assembly.Result, r))
		},
	}
}

// nucleotideCheck needs every segment accession of an assembly to be visible.
func nucleotideCheck(store db.Store, source vis.Source) check[domain.AssemblyEntity] {
	field := db.Assembly.EnaNucleotideVisible
	if source == vis.NCBI {
		field = db.Assembly.NcbiNucleotideVisible
	}
	return assemblyCheck(
		store, source, vis.Nucleotide, field,
		func(r *domain.AssemblyResult) []string { return r.NucleotideAccessions() },
		func(r *domain.AssemblyResult) **time.Time {
			return stampOf(source, &r.EnaNucleotideFirstPubliclyVisible, &r.NcbiNucleotideFirstPubliclyVisible)
		},
	)
}

func genomeCheck(store db.Store, source vis.Source) check[domain.AssemblyEntity] {
	field := db.Assembly.EnaGcaVisible
	if source == vis.NCBI {
		field = db.Assembly.NcbiGcaVisible
	}
	return assemblyCheck(
		store, source, vis.Genome, field,
		func(r *domain.AssemblyResult) []string {
			if r.GcaAccession == "" {
				return nil
			}
			return []string{r.GcaAccession}
		},
		func(r *domain.AssemblyResult) **time.Time {
			return stampOf(source, &r.EnaGcaFirstPubliclyVisible, &r.NcbiGcaFirstPubliclyVisible)
		},
	)
}
