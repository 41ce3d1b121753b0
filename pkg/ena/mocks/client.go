package mocks

import (
	"context"
	"errors"

	"github.com/loculus-project/ena-deposition/pkg/ena"
)

type Client struct {
	Impl struct {
		Submit         func(ctx context.Context, doc ena.Document) (*ena.Receipt, error)
		SubmitAssembly func(ctx context.Context, a ena.Assembly) (string, error)
		AssemblyReport func(ctx context.Context, erz string) (*ena.ProcessReport, error)
	}
	Calls struct {
		Submit         []ena.Document
		SubmitAssembly []ena.Assembly
		AssemblyReport []string
	}
}

func NewClient() *Client {
	return &Client{}
}

var _ ena.Client = &Client{}

func (m *Client) Submit(ctx context.Context, doc ena.Document) (*ena.Receipt, error) {
	m.Calls.Submit = append(m.Calls.Submit, doc)
	if m.Impl.Submit != nil {
		return m.Impl.Submit(ctx, doc)
	}
	panic(errors.New("it should not be called"))
}

func (m *Client) SubmitAssembly(ctx context.Context, a ena.Assembly) (string, error) {
	m.Calls.SubmitAssembly = append(m.Calls.SubmitAssembly, a)
	if m.Impl.SubmitAssembly != nil {
		return m.Impl.SubmitAssembly(ctx, a)
	}
	panic(errors.New("it should not be called"))
}

func (m *Client) AssemblyReport(ctx context.Context, erz string) (*ena.ProcessReport, error) {
	m.Calls.AssemblyReport = append(m.Calls.AssemblyReport, erz)
	if m.Impl.AssemblyReport != nil {
		return m.Impl.AssemblyReport(ctx, erz)
	}
	panic(errors.New("it should not be called"))
}
