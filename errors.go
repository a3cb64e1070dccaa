package segmap

import "errors"

var (
	// ErrInvalidArgument is returned by the constructors for a negative
	// capacity, a non-positive load factor or a non-positive concurrency
	// level.
	ErrInvalidArgument = errors.New("segmap: invalid argument")

	// ErrNilKey is the panic value of operations given a nil key.
	ErrNilKey = errors.New("segmap: nil key")

	// ErrNilValue is the panic value of operations given a nil value or a
	// nil expected value.
	ErrNilValue = errors.New("segmap: nil value")

	// ErrNoSuchElement is returned by Iterator.Next once the iteration has
	// no more entries.
	ErrNoSuchElement = errors.New("segmap: no such element")

	// ErrIllegalState is returned by Iterator.Remove when there is no
	// entry to remove, either because Next was never called or because the
	// last returned entry was already removed.
	ErrIllegalState = errors.New("segmap: illegal iterator state")
)
