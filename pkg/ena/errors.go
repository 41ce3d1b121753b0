package ena

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// the archive answered, and said no.
	ErrRejected = errors.New("rejected by archive")

	// the archive answered something we cannot read.
	ErrMalformed = errors.New("malformed archive response")

	// the archive did not answer, or answered with server error.
	ErrUnavailable = errors.New("archive unavailable")
)

// Rejection is ErrRejected with messages from the archive.
type Rejection struct {
	Messages []string
}

func (r Rejection) Error() string {
	if len(r.Messages) == 0 {
		return ErrRejected.Error()
	}
	return fmt.Sprintf("%s: %s", ErrRejected, strings.Join(r.Messages, "; "))
}

func (r Rejection) Unwrap() error {
	return ErrRejected
}

// Messages extracts messages worth recording as row errors from err.
func Messages(err error) []string {
	if r := new(Rejection); errors.As(err, r) && len(r.Messages) != 0 {
		return r.Messages
	}
	return []string{err.Error()}
}

// Recordable reports that err should be recorded as HAS_ERRORS,
// rather than aborting the sweep.
func Recordable(err error) bool {
	return errors.Is(err, ErrRejected) || errors.Is(err, ErrMalformed)
}
