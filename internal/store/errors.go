package store

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindInit ErrorKind = iota + 1
	KindRead
	KindWrite
)

func (k ErrorKind) String() string {
	switch k {
	case KindInit:
		return "store initialization"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	}
	return "store"
}

// Error is a storage fault tagged with the kind used to pick a user-facing
// treatment: init errors block the screen, read/write errors are alerts.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String() + " error"
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels below, so errors.Is(err, ErrRead) works for
// any read fault regardless of the operation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrInit  = &Error{Kind: KindInit}
	ErrRead  = &Error{Kind: KindRead}
	ErrWrite = &Error{Kind: KindWrite}

	ErrNotInitialized = errors.New("database not initialized, call Initialize first")
	ErrInvalidQuery   = errors.New("invalid dream query")
)

func readError(op string, err error) error {
	return &Error{Kind: KindRead, Op: op, Err: err}
}

func writeError(op string, err error) error {
	return &Error{Kind: KindWrite, Op: op, Err: err}
}
