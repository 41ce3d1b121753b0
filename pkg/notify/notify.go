package notify

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrNotifyFailed = errors.New("notification failed")

// Alert is a message to operators.
type Alert struct {
	// identity of the stuck condition. Alerts of the same condition are debounced.
	Condition string `json:"condition"`

	Title string   `json:"title"`
	Lines []string `json:"lines"`

	At time.Time `json:"at"`
}

// Text renders the alert as a plain text message.
func (a Alert) Text() string {
	return a.Title + "\n" + strings.Join(a.Lines, "\n")
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(context.Context, Alert) error
}

// None is a Notifier which drops everything.
type None struct{}

func (None) Notify(context.Context, Alert) error {
	return nil
}
