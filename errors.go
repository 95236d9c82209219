package wsflow

import (
	"fmt"
	"net/url"

	"github.com/pkg/errors"
)

var (
	ErrConnectionClosed  = errors.New("connection has been closed")
	ErrCannotConnect     = errors.New("connection cannot be established")
	ErrRateLimit         = errors.New("rate limit exceeded")
	ErrNotConnected      = errors.New("no open connection")
	ErrAlreadySubscribed = errors.New("message sequence already has a subscriber")
	ErrInvalidConfig     = errors.New("invalid configuration")
)

// ErrUnrecoverableConnection is returned when a connection can never be established to the
// given URL, no matter how many times it is attempted.
type ErrUnrecoverableConnection struct {
	err error
	url url.URL
}

func (e ErrUnrecoverableConnection) Error() string {
	return fmt.Sprintf("Unrecoverable connection error: %s to %s", e.err, e.url.String())
}

func (e ErrUnrecoverableConnection) Unwrap() error { return e.err }

func WrapErrorUnrecoverableConnection(err error, url url.URL) *ErrUnrecoverableConnection {
	if err == nil {
		return nil
	}
	return &ErrUnrecoverableConnection{
		err: err,
		url: url,
	}
}
