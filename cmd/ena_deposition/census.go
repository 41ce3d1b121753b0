package main

import (
	"context"

	"github.com/loculus-project/ena-deposition/pkg/db"
	"github.com/loculus-project/ena-deposition/pkg/metrics"
)

// Census is row counts per status, per table.
type Census map[string]map[string]int64

// TakeCensus counts rows of every table. When m is not nil, counts are recorded also.
func TakeCensus(ctx context.Context, store db.Store, m *metrics.Metrics) (Census, error) {
	c := Census{}
	for _, t := range []struct {
		name  string
		count func(context.Context) (map[string]int64, error)
	}{
		{name: db.IntakeTableName, count: store.Intake().CountByStatus},
		{name: db.ProjectTableName, count: store.Projects().CountByStatus},
		{name: db.SampleTableName, count: store.Samples().CountByStatus},
		{name: db.AssemblyTableName, count: store.Assemblies().CountByStatus},
	} {
		counts, err := t.count(ctx)
		if err != nil {
			return nil, err
		}
		c[t.name] = counts
		m.Rows(t.name, counts)
	}
	return c, nil
}
