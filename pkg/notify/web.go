package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Web is a webhook Notifier.
//
// Each alert is sent as a JSON payload to every URL.
// The payload has "text" field, so it can be posted to chat incoming webhooks as is.
type Web struct {
	URL []*url.URL

	Client *http.Client
}

type webPayload struct {
	Text string `json:"text"`
	Alert
}

func (w Web) sendRequest(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	hc := w.Client
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotifyFailed, err)
	}
	defer resp.Body.Close()

	if 200 <= resp.StatusCode && resp.StatusCode < 300 {
		return nil
	}

	ctype := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ctype, "text/") && !(strings.HasPrefix(ctype, "application/") && strings.Contains(ctype, "json")) {
		return fmt.Errorf(
			"%w (%s %d, Content-Type: %s)",
			ErrNotifyFailed, url, resp.StatusCode, ctype,
		)
	}

	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf(
		"%w (%s %d, Content-Type: %s): %s",
		ErrNotifyFailed, url, resp.StatusCode, ctype, string(body),
	)
}

func (w Web) Notify(ctx context.Context, alert Alert) error {
	buf, err := json.Marshal(webPayload{Text: alert.Text(), Alert: alert})
	if err != nil {
		return err
	}

	for _, u := range w.URL {
		if err := w.sendRequest(ctx, u.String(), buf); err != nil {
			return err
		}
	}
	return nil
}
