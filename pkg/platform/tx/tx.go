// Package tx carries transaction state through a context: the SQL transaction
// used by outbox stores and the in-memory journal used by ledger stores.
package tx

import (
	"context"
	"database/sql"
)

type (
	sqlKey     struct{}
	journalKey struct{}
)

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, sqlKey{}, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(sqlKey{}).(*sql.Tx)
	return tx, ok
}

// Journal records how to undo every in-memory mutation of one ledger
// transaction, and the work to run once it commits.
//
// A Journal is used by a single goroutine; the protocol's writer lock
// guarantees that.
type Journal struct {
	undo  []func()
	after []func(context.Context)
	done  bool
}

// NewJournal returns an open journal.
func NewJournal() *Journal {
	return &Journal{}
}

// WithJournal installs j in ctx.
func WithJournal(ctx context.Context, j *Journal) context.Context {
	return context.WithValue(ctx, journalKey{}, j)
}

// JournalFrom extracts the journal from context if present.
func JournalFrom(ctx context.Context) (*Journal, bool) {
	j, ok := ctx.Value(journalKey{}).(*Journal)
	return j, ok && j != nil
}

// Record registers an undo closure for a mutation that has just been applied.
// Without a journal in ctx the mutation stands and undo is dropped.
func Record(ctx context.Context, undo func()) {
	if j, ok := JournalFrom(ctx); ok && !j.done {
		j.undo = append(j.undo, undo)
	}
}

// AfterCommit defers fn until the journal commits. Without a journal in ctx fn
// runs immediately.
func AfterCommit(ctx context.Context, fn func(context.Context)) {
	if j, ok := JournalFrom(ctx); ok && !j.done {
		j.after = append(j.after, fn)
		return
	}
	fn(ctx)
}

// Commit closes the journal, drops the undo log and runs the deferred hooks in
// registration order.
func (j *Journal) Commit(ctx context.Context) {
	if j.done {
		return
	}
	j.done = true
	hooks := j.after
	j.undo, j.after = nil, nil
	for _, fn := range hooks {
		fn(ctx)
	}
}

// Rollback closes the journal, reverts every recorded mutation in reverse
// order and discards the deferred hooks.
func (j *Journal) Rollback() {
	if j.done {
		return
	}
	j.done = true
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo, j.after = nil, nil
}

// Len reports the number of recorded mutations.
func (j *Journal) Len() int {
	return len(j.undo)
}

// SetKey assigns m[k] = v and records the undo.
func SetKey[K comparable, V any](ctx context.Context, m map[K]V, k K, v V) {
	old, existed := m[k]
	m[k] = v
	Record(ctx, func() {
		if existed {
			m[k] = old
			return
		}
		delete(m, k)
	})
}

// Assign sets *p = v and records the undo.
func Assign[T any](ctx context.Context, p *T, v T) {
	old := *p
	*p = v
	Record(ctx, func() { *p = old })
}
