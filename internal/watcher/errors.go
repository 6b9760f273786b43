package watcher

import (
	"errors"
	"fmt"
)

// ErrReorgInvalidated marks a log the node flagged as removed. Handlers
// return it so the loop drops the log without counting a failure.
var ErrReorgInvalidated = errors.New("log invalidated by reorg")

// TransientFetchError is an RPC failure for one range attempt. The planner
// shrinks the chunk and retries the same range.
type TransientFetchError struct {
	From uint64
	To   uint64
	Err  error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("fetch logs [%d, %d]: %v", e.From, e.To, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// DecodeError is a malformed log. The batch continues past it.
type DecodeError struct {
	Event  string
	Block  uint64
	TxHash string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s at block %d tx %s: %v", e.Event, e.Block, e.TxHash, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PersistenceError is a failed sink write. It aborts the whole range so the
// cursor never advances past an uncommitted range.
type PersistenceError struct {
	Event string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Event, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
