package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/gommon/log"
	tctx "github.com/loculus-project/ena-deposition/internal/testutils/context"
	thttp "github.com/loculus-project/ena-deposition/internal/testutils/http"
	"github.com/loculus-project/ena-deposition/internal/testutils/store"
	"github.com/loculus-project/ena-deposition/pkg/db"
	"github.com/loculus-project/ena-deposition/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func TestOpsServer(t *testing.T) {
	ctx := tctx.WithTest(context.Background(), t)
	s := store.SQLite(ctx, t)
	for _, e := range []string{"LOC_0001", "LOC_0002"} {
		if err := s.Intake().Insert(ctx, store.Entry(e, 1)); err != nil {
			t.Fatal(err)
		}
	}
	reg := prometheus.NewRegistry()
	testee := OpsServer(s, metrics.New(reg), reg, "off")

	t.Run("healthz", func(t *testing.T) {
		resp := thttp.Get(testee, "/healthz", thttp.WithContext(ctx))
		if resp.Code != http.StatusNoContent {
			t.Errorf("status code: %d", resp.Code)
		}
	})

	t.Run("status", func(t *testing.T) {
		resp := thttp.Get(testee, "/api/status", thttp.WithContext(ctx))
		if resp.Code != http.StatusOK {
			t.Fatalf("status code: %d", resp.Code)
		}
		got := Census{}
		if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if got[db.IntakeTableName]["READY_TO_SUBMIT"] != 2 {
			t.Errorf("census: %v", got)
		}
		for _, table := range []string{db.ProjectTableName, db.SampleTableName, db.AssemblyTableName} {
			if counts, ok := got[table]; !ok || len(counts) != 0 {
				t.Errorf("%s: %v", table, counts)
			}
		}
	})

	t.Run("metrics has counts taken by status", func(t *testing.T) {
		resp := thttp.Get(testee, "/metrics", thttp.WithContext(ctx))
		if resp.Code != http.StatusOK {
			t.Fatalf("status code: %d", resp.Code)
		}
		want := `ena_deposition_rows{status="READY_TO_SUBMIT",table="submission_table"} 2`
		if !strings.Contains(resp.Body.String(), want) {
			t.Errorf("metrics does not contain %s:\n%s", want, resp.Body.String())
		}
	})

	t.Run("healthz when the database is gone", func(t *testing.T) {
		gone := store.SQLite(ctx, t)
		gone.Close()
		resp := thttp.Get(OpsServer(gone, nil, prometheus.NewRegistry(), "off"), "/healthz")
		if resp.Code != http.StatusServiceUnavailable {
			t.Errorf("status code: %d", resp.Code)
		}
	})
}

func TestMonitor(t *testing.T) {
	logger := log.New("test")
	logger.SetLevel(log.OFF)

	t.Run("it passes through the task", func(t *testing.T) {
		calls := 0
		testee := monitor(logger, nil, "fake", func(_ context.Context, n int) (int, bool, error) {
			calls += 1
			return n + 1, true, nil
		})
		got, updated, err := testee(context.Background(), 41)
		if got != 42 || !updated || err != nil || calls != 1 {
			t.Errorf("(%d, %v, %v) after %d calls", got, updated, err, calls)
		}
	})

	t.Run("it records sweeps", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)
		fail := context.DeadlineExceeded
		testee := monitor(logger, m, "fake", func(_ context.Context, n int) (int, bool, error) {
			if n < 0 {
				return n, false, fail
			}
			return n, false, nil
		})
		testee(context.Background(), 1)
		testee(context.Background(), -1)
		testee(context.Background(), 1)

		families, err := reg.Gather()
		if err != nil {
			t.Fatal(err)
		}
		got := map[string]float64{}
		for _, f := range families {
			if f.GetName() != "ena_deposition_sweeps_total" {
				continue
			}
			for _, metric := range f.GetMetric() {
				for _, l := range metric.GetLabel() {
					if l.GetName() == "outcome" {
						got[l.GetValue()] = metric.GetCounter().GetValue()
					}
				}
			}
		}
		if got["ok"] != 2 || got["error"] != 1 {
			t.Errorf("sweeps: %v", got)
		}
	})
}
