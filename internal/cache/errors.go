package cache

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/danhigham/tgcache/internal/loader"
	"github.com/danhigham/tgcache/internal/telegram"
)

var (
	// ErrNotFound means the entity never existed or was purged.
	ErrNotFound = errors.New("not found")
	// ErrInaccessible means the entity exists but the current account cannot
	// see it. It may heal once rights change.
	ErrInaccessible = errors.New("inaccessible")
	// ErrUnavailable is returned once the cache is shutting down.
	ErrUnavailable = errors.New("cache unavailable")
	// ErrPrecondition marks operations rejected locally, before any network
	// call, because they are invalid for the current entity state.
	ErrPrecondition = errors.New("precondition failed")
)

// PreconditionError carries the reason an operation was rejected locally.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Reason
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

func precondition(format string, args ...any) error {
	return &PreconditionError{Reason: fmt.Sprintf(format, args...)}
}

// classify maps loader and transport errors onto the cache taxonomy.
// Anything else is a transient remote failure and is returned as is.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, loader.ErrClosed), errors.Is(err, ErrUnavailable):
		return ErrUnavailable
	case errors.Is(err, loader.ErrNotFound), errors.Is(err, telegram.ErrNotFound):
		return errors.Wrap(ErrNotFound, err.Error())
	case errors.Is(err, telegram.ErrInaccessible):
		return errors.Wrap(ErrInaccessible, err.Error())
	default:
		return err
	}
}
