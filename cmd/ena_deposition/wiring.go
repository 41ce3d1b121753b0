package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	configs "github.com/loculus-project/ena-deposition/pkg/configs/deposition"
	"github.com/loculus-project/ena-deposition/pkg/db"
	kpg "github.com/loculus-project/ena-deposition/pkg/db/postgres"
	"github.com/loculus-project/ena-deposition/pkg/db/sqlite"
	"github.com/loculus-project/ena-deposition/pkg/deposition"
	"github.com/loculus-project/ena-deposition/pkg/deposition/sample"
	"github.com/loculus-project/ena-deposition/pkg/ena"
	"github.com/loculus-project/ena-deposition/pkg/loculus"
	"github.com/loculus-project/ena-deposition/pkg/metrics"
	"github.com/loculus-project/ena-deposition/pkg/notify"
	"github.com/loculus-project/ena-deposition/pkg/payloads"
	"github.com/loculus-project/ena-deposition/pkg/visibility"
)

// OpenStore connects to the database named by dsn: "postgres://..." or "sqlite:///path/to/file".
//
// For postgres, the schema should be the latest. Otherwise, it returns an error wrapping schema.ErrOutdated.
func OpenStore(ctx context.Context, dsn string) (db.Store, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		s, err := kpg.New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := s.Schema().Check(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case "sqlite":
		path := strings.TrimPrefix(dsn, "sqlite://")
		return sqlite.Open(ctx, path)
	}
	return nil, fmt.Errorf("database: unsupported scheme %q", u.Scheme)
}

// Organisms converts organism configs.
func Organisms(conf *configs.Config) map[string]deposition.Organism {
	orgs := map[string]deposition.Organism{}
	for name, o := range conf.Organisms() {
		orgs[name] = deposition.Organism{
			ScientificName: o.ScientificName(),
			TaxonID:        o.TaxonID(),
			MoleculeType:   o.MoleculeType(),
			Topology:       o.Topology(),
			Segments:       o.Segments(),
		}
	}
	return orgs
}

// Mapping converts the sample attribute mapping config.
func Mapping(conf *configs.Config) sample.Mapping {
	m := sample.Mapping{
		Attributes:        map[string]sample.Attribute{},
		MandatoryDefaults: conf.SampleMapping().MandatoryDefaults(),
		Checklist:         conf.ENA().Checklist(),
	}
	for tag, a := range conf.SampleMapping().Attributes() {
		m.Attributes[tag] = sample.Attribute{
			Fields:   a.Fields(),
			Function: a.Function(),
			Args:     a.Args(),
		}
	}
	return m
}

// Payloads builds the audit store of outgoing documents.
func Payloads(ctx context.Context, conf *configs.PayloadsConfig) (payloads.Store, error) {
	switch conf.Driver() {
	case "s3":
		return payloads.NewS3(ctx, payloads.S3Config{
			Bucket:    conf.Bucket(),
			Region:    conf.Region(),
			Endpoint:  conf.Endpoint(),
			PathStyle: conf.PathStyle(),
		})
	case "fs":
		return payloads.FS{Dir: conf.Dir()}, nil
	case "none", "":
		return payloads.None{}, nil
	}
	return nil, fmt.Errorf("payloads: unknown driver %q", conf.Driver())
}

func ENAClient(conf *configs.ENAConfig) ena.Client {
	return ena.New(ena.Config{
		SubmitURL:   conf.SubmitURL(),
		AssemblyURL: conf.AssemblyURL(),
		ReportURL:   conf.ReportURL(),
		Username:    conf.Username(),
		Password:    conf.Password(),
		HoldUntil:   conf.HoldUntil(),
		Timeout:     conf.Timeout(),
	})
}

func LoculusClient(conf *configs.LoculusConfig) loculus.Client {
	hc := loculus.NewHTTPClient(conf.Timeout())
	tokens := loculus.Keycloak(loculus.Credential{
		TokenURL: conf.TokenURL(),
		ClientID: conf.ClientID(),
		Username: conf.Username(),
		Password: conf.Password(),
	}, hc)
	return loculus.New(loculus.Config{BackendURL: conf.BackendURL()}, tokens, hc)
}

func endpoints(e *configs.Endpoints) visibility.Endpoints {
	return visibility.Endpoints{
		visibility.Project:    e.Project(),
		visibility.Sample:     e.Sample(),
		visibility.Nucleotide: e.Nucleotide(),
		visibility.Genome:     e.Genome(),
	}
}

func Prober(conf *configs.VisibilityConfig) visibility.Prober {
	return visibility.NewHTTPProber(
		map[visibility.Source]visibility.Endpoints{
			visibility.ENA:  endpoints(conf.ENA()),
			visibility.NCBI: endpoints(conf.NCBI()),
		},
		conf.Timeout(),
	)
}

func Notifier(conf *configs.EscalationConfig) notify.Notifier {
	u := conf.WebhookURL()
	if u == nil {
		return notify.None{}
	}
	return notify.Web{URL: []*url.URL{u}}
}

// Env builds the environment shared by loops. Logger is set per loop.
func Env(conf *configs.Config, store db.Store, m *metrics.Metrics, p payloads.Store, logger *log.Logger) deposition.Env {
	return deposition.Env{
		Store:         store,
		Logger:        logger,
		Metrics:       m,
		Payloads:      p,
		WriteAttempts: conf.Loops().WriteAttempts(),
		Clock:         time.Now,
	}
}
