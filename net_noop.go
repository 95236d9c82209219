package wsflow

import (
	"context"
)

// noopConnection stands in for the socket until Open builds a real one, so callers never
// need to nil-check the handle.
type noopConnection struct{}

func (noopConnection) Write(Message) error { return ErrNotConnected }

func (noopConnection) Close(int, string) {}

func (noopConnection) CloseChan() CloseChan { return nil }

func (noopConnection) CloseErr() error { return nil }

func (noopConnection) Open(context.Context) error { return ErrNotConnected }
