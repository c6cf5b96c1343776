package saga

import "github.com/pkg/errors"

var (
	ErrNotFound = errors.New("saga instance not found")
	// ErrTerminal is returned on any attempt to mutate a COMPLETED, COMPENSATED or FAILED saga
	ErrTerminal          = errors.New("saga instance is in a terminal status")
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrUnexpectedReply is returned for replies the saga isn't waiting for: late, stale or unknown steps
	ErrUnexpectedReply = errors.New("unexpected reply")
	// ErrConcurrentUpdate is returned by Store.Update when the stored version differs from the updated one
	ErrConcurrentUpdate = errors.New("saga instance was updated concurrently")
)

// ErrAlreadyExists is returned by Store.Create for a taken id or correlation key of the saga type
var ErrAlreadyExists = errors.New("saga instance already exists")
