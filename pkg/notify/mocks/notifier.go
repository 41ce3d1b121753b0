package mocks

import (
	"context"
	"errors"

	"github.com/loculus-project/ena-deposition/pkg/notify"
)

type Notifier struct {
	Impl struct {
		Notify func(context.Context, notify.Alert) error
	}
	Calls struct {
		Notify []notify.Alert
	}
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

var _ notify.Notifier = &Notifier{}

func (m *Notifier) Notify(ctx context.Context, alert notify.Alert) error {
	m.Calls.Notify = append(m.Calls.Notify, alert)
	if m.Impl.Notify != nil {
		return m.Impl.Notify(ctx, alert)
	}
	panic(errors.New("it should not be called"))
}
