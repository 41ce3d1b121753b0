package mocks

import (
	"context"
	"errors"

	"github.com/loculus-project/ena-deposition/pkg/visibility"
)

type ProbeCall struct {
	Source    visibility.Source
	Target    visibility.Target
	Accession string
}

type Prober struct {
	Impl struct {
		Visible func(ctx context.Context, source visibility.Source, target visibility.Target, accession string) (bool, error)
	}
	Calls struct {
		Visible []ProbeCall
	}
}

func NewProber() *Prober {
	return &Prober{}
}

var _ visibility.Prober = &Prober{}

func (m *Prober) Visible(ctx context.Context, source visibility.Source, target visibility.Target, accession string) (bool, error) {
	m.Calls.Visible = append(m.Calls.Visible, ProbeCall{Source: source, Target: target, Accession: accession})
	if m.Impl.Visible != nil {
		return m.Impl.Visible(ctx, source, target, accession)
	}
	panic(errors.New("it should not be called"))
}
