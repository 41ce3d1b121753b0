package main

import (
	"context"
	"time"

	"github.com/labstack/gommon/log"
	configs "github.com/loculus-project/ena-deposition/pkg/configs/deposition"
	"github.com/loculus-project/ena-deposition/pkg/deposition"
	"github.com/loculus-project/ena-deposition/pkg/deposition/assembly"
	"github.com/loculus-project/ena-deposition/pkg/deposition/escalation"
	"github.com/loculus-project/ena-deposition/pkg/deposition/project"
	"github.com/loculus-project/ena-deposition/pkg/deposition/sample"
	"github.com/loculus-project/ena-deposition/pkg/deposition/tracker"
	"github.com/loculus-project/ena-deposition/pkg/deposition/visibility"
	"github.com/loculus-project/ena-deposition/pkg/echoutil"
	"github.com/loculus-project/ena-deposition/pkg/ena"
	"github.com/loculus-project/ena-deposition/pkg/loculus"
	"github.com/loculus-project/ena-deposition/pkg/loop"
	"github.com/loculus-project/ena-deposition/pkg/loop/recurring"
	"github.com/loculus-project/ena-deposition/pkg/metrics"
	"github.com/loculus-project/ena-deposition/pkg/notify"
	vis "github.com/loculus-project/ena-deposition/pkg/visibility"
)

// Wrapper for monitoring sweeps
//
//	Log the start and end of each sweep, and record its duration. Essentially, it executes a task.
func monitor[T any](logger *log.Logger, m *metrics.Metrics, name string, task recurring.Task[T]) recurring.Task[T] {
	// counter for execution of the task
	var counter uint64
	return func(ctx context.Context, t T) (ret T, updated bool, err error) {
		counter += 1
		timestamp := time.Now()

		logger.Debugf("task start: #0x%X", counter)

		defer func() {
			elapsed := time.Since(timestamp)
			m.Sweep(name, elapsed, err)
			switch {
			case err == nil:
				logger.Debugf(
					"task end: #0x%X (takes %s): updated = %v, with value = %+v",
					counter, elapsed, updated, ret,
				)
			case deposition.IsFatal(err):
				logger.Errorf("task end: #0x%X (takes %s): fatal: %s", counter, elapsed, err)
			case deposition.Tolerable(err):
				logger.Warnf("task end: #0x%X (takes %s): %s", counter, elapsed, err)
			default:
				logger.Errorf("task end: #0x%X (takes %s): %s", counter, elapsed, err)
			}
		}()

		ret, updated, err = task(ctx, t)
		return
	}
}

// Manifest for starting a loop, which determines how the loop should behave.
type LoopManifest struct {
	// Policy for the looping. Fatal errors break the loop regardless of it.
	Policy recurring.Policy

	// Timeout of each sweep. Zero means no timeout.
	Timeout time.Duration

	// LogLevel of loop loggers.
	LogLevel string
}

// Dependencies are clients and the environment shared by loops.
type Dependencies struct {
	Env       deposition.Env
	ENA       ena.Client
	Loculus   loculus.Client
	Prober    vis.Prober
	Notifier  notify.Notifier
	Organisms map[string]deposition.Organism
	Mapping   sample.Mapping
	Website   string
}

// Loop is a named loop.
type Loop struct {
	Name  string
	Start func(ctx context.Context) error
}

func start[T any](
	ctx context.Context, name string, env deposition.Env,
	manifest LoopManifest, init T, task recurring.Task[T],
) error {
	logger := env.Log()
	logger.Infof(`start loop "%s" /w policy "%s"`, name, manifest.Policy)

	options := []loop.LoopOption{}
	if 0 < manifest.Timeout {
		options = append(options, loop.WithTimeout(manifest.Timeout))
	}
	last, err := loop.Start(
		ctx, init,
		monitor(logger, env.Metrics, name, task).Applied(recurring.UntilFatal(manifest.Policy, deposition.IsFatal)),
		options...,
	)
	logger.Infof(`loop "%s" is stopped: %+v`, name, last)
	return err
}

// Loops builds every loop of the deposition.
//
// Each loop has its own logger prefixed with "[<name> loop]".
func Loops(deps Dependencies, conf *configs.Config, manifest LoopManifest) []Loop {
	envOf := func(name string) deposition.Env {
		env := deps.Env
		env.Logger = echoutil.Logger("["+name+" loop]", manifest.LogLevel)
		return env
	}

	loops := []Loop{}
	add := func(name string, f func(ctx context.Context, env deposition.Env) error) {
		env := envOf(name)
		loops = append(loops, Loop{
			Name:  name,
			Start: func(ctx context.Context) error { return f(ctx, env) },
		})
	}

	add("tracker", func(ctx context.Context, env deposition.Env) error {
		t := tracker.New(env, deps.Loculus)
		return start(ctx, "tracker", env, manifest, tracker.Seed(), tracker.Task(t))
	})
	add("project", func(ctx context.Context, env deposition.Env) error {
		c := project.New(env, deps.ENA, deps.Organisms, deps.Website)
		return start(ctx, "project", env, manifest, project.Seed(), project.Task(c))
	})
	add("sample", func(ctx context.Context, env deposition.Env) error {
		c := sample.New(env, deps.ENA, deps.Organisms, deps.Mapping, deps.Website)
		return start(ctx, "sample", env, manifest, sample.Seed(), sample.Task(c))
	})
	add("assembly", func(ctx context.Context, env deposition.Env) error {
		schedule := assembly.NewSchedule(conf.Loops().AssemblyPollInterval(), env.Now)
		c := assembly.New(env, deps.ENA, deps.Organisms, schedule)
		return start(ctx, "assembly", env, manifest, assembly.Seed(), assembly.Task(c))
	})
	add("visibility", func(ctx context.Context, env deposition.Env) error {
		c := visibility.New(env, deps.Prober, conf.Visibility().CacheSize())
		return start(ctx, "visibility", env, manifest, visibility.Seed(), visibility.Task(c))
	})
	add("escalation", func(ctx context.Context, env deposition.Env) error {
		e := escalation.New(env, deps.Notifier, escalation.Thresholds{
			Submitting: conf.Escalation().SubmittingThreshold(),
			Waiting:    conf.Escalation().WaitingThreshold(),
			Cooldown:   conf.Escalation().Cooldown(),
		})
		return start(ctx, "escalation", env, manifest, escalation.Seed(), escalation.Task(e))
	})
	return loops
}
