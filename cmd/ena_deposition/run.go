package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	configs "github.com/loculus-project/ena-deposition/pkg/configs/deposition"
	"github.com/loculus-project/ena-deposition/pkg/echoutil"
	"github.com/loculus-project/ena-deposition/pkg/loop/recurring"
	"github.com/loculus-project/ena-deposition/pkg/metrics"
	"github.com/loculus-project/ena-deposition/pkg/utils/args"
	"github.com/loculus-project/ena-deposition/pkg/utils/filewatch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// ErrRestart is returned when the process should be restarted, for example, by an update of the config file.
var ErrRestart = errors.New("restart required")

func RunCmd(g *GlobalFlags) *cobra.Command {
	policy := args.Parser("policy", recurring.ParsePolicy)
	var only []string
	var serve bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run deposition loops and the ops server",
		Long: `Run the loops advancing submissions:
  tracker, project, sample, assembly, visibility and escalation.

Every loop sweeps the database, then waits as the loop policy says.
An internal consistency violation stops all loops.
When the config file is modified, it quits to be restarted with the new config.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			{
				// watch config
				wctx, cancel, err := filewatch.UntilModified(ctx, g.Config)
				if err != nil {
					return err
				}
				defer cancel()
				ctx = wctx
			}

			conf, err := configs.LoadConfig(g.Config)
			if err != nil {
				return fmt.Errorf("can not read configuration: %w", err)
			}
			loglevel := g.LogLevelOr(conf.Server().LogLevel())
			logger := echoutil.Logger("[supervisor]", loglevel)

			store, err := OpenStore(ctx, conf.Database())
			if err != nil {
				return err
			}
			defer store.Close()

			p, err := Payloads(ctx, conf.Payloads())
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			m := metrics.New(reg)

			deps := Dependencies{
				Env:       Env(conf, store, m, p, logger),
				ENA:       ENAClient(conf.ENA()),
				Loculus:   LoculusClient(conf.Loculus()),
				Prober:    Prober(conf.Visibility()),
				Notifier:  Notifier(conf.Escalation()),
				Organisms: Organisms(conf),
				Mapping:   Mapping(conf),
				Website:   conf.Loculus().WebsiteURL(),
			}
			manifest := LoopManifest{
				Policy:   policy.Or(conf.Loops().Policy()),
				Timeout:  conf.Loops().Timeout(),
				LogLevel: loglevel,
			}

			loops := Loops(deps, conf, manifest)
			if len(only) != 0 {
				names := []string{}
				for _, l := range loops {
					names = append(names, l.Name)
				}
				for _, o := range only {
					if !slices.Contains(names, o) {
						return fmt.Errorf("unknown loop: %s (should be one of %s)", o, strings.Join(names, ", "))
					}
				}
				loops = slices.DeleteFunc(loops, func(l Loop) bool { return !slices.Contains(only, l.Name) })
			}

			group, gctx := errgroup.WithContext(ctx)
			for _, l := range loops {
				group.Go(func() error {
					if err := l.Start(gctx); err != nil {
						return fmt.Errorf("%s loop: %w", l.Name, err)
					}
					return nil
				})
			}
			if serve {
				e := OpsServer(store, m, reg, loglevel)
				group.Go(func() error {
					logger.Infof("ops server listens on :%d", conf.Server().Port())
					return Serve(gctx, e, conf.Server().Port())
				})
			}

			err = group.Wait()
			if cause := context.Cause(ctx); errors.Is(cause, filewatch.ErrModified) {
				logger.Warnf("%s. quit to restart.", cause)
				return fmt.Errorf("%w: %w", ErrRestart, cause)
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("stopped")
			return nil
		},
	}

	cmd.Flags().Var(policy, "policy", `override loop policy (syntax: forever[:COOLDOWN]|backlog)`)
	cmd.Flags().StringSliceVar(&only, "loops", nil, "run only these loops (comma separated)")
	cmd.Flags().BoolVar(&serve, "serve", true, "run the ops server (/healthz, /metrics, /api/status)")
	return cmd
}
