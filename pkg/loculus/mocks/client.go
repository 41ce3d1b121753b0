package mocks

import (
	"context"
	"errors"

	"github.com/loculus-project/ena-deposition/pkg/loculus"
)

type SubmitCall struct {
	Organism string
	Entries  []loculus.ExternalMetadata
}

type Client struct {
	Impl struct {
		SubmitExternalMetadata func(ctx context.Context, organism string, entries []loculus.ExternalMetadata) error
	}
	Calls struct {
		SubmitExternalMetadata []SubmitCall
	}
}

func NewClient() *Client {
	return &Client{}
}

var _ loculus.Client = &Client{}

func (m *Client) SubmitExternalMetadata(ctx context.Context, organism string, entries []loculus.ExternalMetadata) error {
	m.Calls.SubmitExternalMetadata = append(
		m.Calls.SubmitExternalMetadata, SubmitCall{Organism: organism, Entries: entries},
	)
	if m.Impl.SubmitExternalMetadata != nil {
		return m.Impl.SubmitExternalMetadata(ctx, organism, entries)
	}
	panic(errors.New("it should not be called"))
}
