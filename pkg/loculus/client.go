package loculus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/loculus-project/ena-deposition/pkg/domain"
)

// ErrPushBack is an error of sending external metadata.
var ErrPushBack = errors.New("external metadata upload failed")

// ExternalMetadata is one line of the push-back payload.
type ExternalMetadata struct {
	Accession        string         `json:"accession"`
	Version          int64          `json:"version"`
	ExternalMetadata map[string]any `json:"externalMetadata"`
}

func (e ExternalMetadata) Key() domain.SequenceKey {
	return domain.SequenceKey{Accession: e.Accession, Version: e.Version}
}

// Client talks to the host platform backend.
type Client interface {
	// SubmitExternalMetadata sends external metadata of entries of an organism.
	//
	// It is idempotent: resending the same entries is safe.
	SubmitExternalMetadata(ctx context.Context, organism string, entries []ExternalMetadata) error
}

// Updater is the name of this external metadata updater.
const Updater = "ena"

type Config struct {
	BackendURL string
}

type client struct {
	conf   Config
	hc     *http.Client
	tokens TokenSource
}

func New(conf Config, tokens TokenSource, hc *http.Client) Client {
	return &client{conf: conf, hc: hc, tokens: tokens}
}

// NewHTTPClient returns a http.Client with timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (c *client) SubmitExternalMetadata(ctx context.Context, organism string, entries []ExternalMetadata) error {
	if len(entries) == 0 {
		return nil
	}

	body := new(bytes.Buffer)
	enc := json.NewEncoder(body)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}

	u, err := url.JoinPath(c.conf.BackendURL, url.PathEscape(organism), "submit-external-metadata")
	if err != nil {
		return err
	}
	u += "?" + url.Values{"externalMetadataUpdater": {Updater}}.Encode()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPushBack, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPushBack, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || 300 <= resp.StatusCode {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: %s: status %d: %s", ErrPushBack, organism, resp.StatusCode, msg)
	}
	return nil
}
