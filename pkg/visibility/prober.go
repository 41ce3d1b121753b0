package visibility

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Source is where accessions are looked up.
type Source string

const (
	// the archive itself.
	ENA Source = "ena"

	// the public mirror.
	NCBI Source = "ncbi"
)

// Target is what kind of accession is looked up.
type Target string

const (
	Project    Target = "project"
	Sample     Target = "sample"
	Nucleotide Target = "nucleotide"
	Genome     Target = "genome"
)

// Prober tells that an accession is publicly visible.
type Prober interface {
	Visible(ctx context.Context, source Source, target Target, accession string) (bool, error)
}

// Endpoints are URL templates of browse endpoints, per target.
// "%s" in templates is replaced by an accession.
type Endpoints map[Target]string

type httpProber struct {
	endpoints map[Source]Endpoints
	hc        *http.Client
}

// NewHTTPProber returns a Prober with HTTP GET.
//
// Status 200 means visible. Other statuses, including redirects, mean not visible yet.
func NewHTTPProber(endpoints map[Source]Endpoints, timeout time.Duration) Prober {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpProber{
		endpoints: endpoints,
		hc: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// URL returns the URL to be probed.
func (p *httpProber) URL(source Source, target Target, accession string) (string, error) {
	tpl, ok := p.endpoints[source][target]
	if !ok || tpl == "" {
		return "", fmt.Errorf("no endpoint for %s %s", source, target)
	}
	if !strings.Contains(tpl, "%s") {
		return strings.TrimSuffix(tpl, "/") + "/" + accession, nil
	}
	return fmt.Sprintf(tpl, accession), nil
}

func (p *httpProber) Visible(ctx context.Context, source Source, target Target, accession string) (bool, error) {
	u, err := p.URL(source, target, accession)
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}

	resp, err := p.hc.Do(req)
	if err != nil {
		return false, fmt.Errorf("probing %s: %w", u, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK, nil
}
