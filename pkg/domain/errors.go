package domain

import (
	"errors"
	"fmt"
)

var (
	// a row with the same key exists already.
	ErrDuplicate = errors.New("duplicate key")

	// the store contradicts what the state machine guarantees.
	//
	// This is fatal: loops stop on it.
	ErrInconsistent = errors.New("internal consistency violation")

	// an aggregate status would move backward.
	ErrRegression = errors.New("status regression")
)

// Inconsistency describes an ErrInconsistent.
type Inconsistency struct {
	Table    string
	Identity string
	Reason   string
}

var _ error = Inconsistency{}

func (i Inconsistency) Error() string {
	return fmt.Sprintf("%s: %s in %s: %s", ErrInconsistent, i.Identity, i.Table, i.Reason)
}

func (i Inconsistency) Unwrap() error {
	return ErrInconsistent
}
