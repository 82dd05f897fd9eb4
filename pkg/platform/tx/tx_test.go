package tx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal(t *testing.T) {
	t.Run("rollback undoes in reverse order and drops hooks", func(t *testing.T) {
		j := NewJournal()
		ctx := WithJournal(context.Background(), j)

		var order []int
		var hooked bool
		Record(ctx, func() { order = append(order, 1) })
		Record(ctx, func() { order = append(order, 2) })
		AfterCommit(ctx, func(context.Context) { hooked = true })

		j.Rollback()
		assert.Equal(t, []int{2, 1}, order)
		assert.False(t, hooked)

		j.Commit(ctx)
		assert.False(t, hooked, "closed journal must not run hooks")
	})

	t.Run("commit runs hooks in order and discards undo", func(t *testing.T) {
		j := NewJournal()
		ctx := WithJournal(context.Background(), j)

		var undone bool
		var order []string
		Record(ctx, func() { undone = true })
		AfterCommit(ctx, func(context.Context) { order = append(order, "a") })
		AfterCommit(ctx, func(context.Context) { order = append(order, "b") })
		require.Equal(t, 1, j.Len())

		j.Commit(ctx)
		j.Rollback()
		assert.False(t, undone)
		assert.Equal(t, []string{"a", "b"}, order)
	})

	t.Run("without journal hooks run immediately", func(t *testing.T) {
		ran := false
		Record(context.Background(), func() { t.Fatal("undo must not run") })
		AfterCommit(context.Background(), func(context.Context) { ran = true })
		assert.True(t, ran)
	})

	t.Run("sql tx absent", func(t *testing.T) {
		_, ok := From(context.Background())
		assert.False(t, ok)
		assert.Equal(t, context.Background(), WithTx(context.Background(), nil))
	})
}

func TestJournaledHelpers(t *testing.T) {
	j := NewJournal()
	ctx := WithJournal(context.Background(), j)

	balances := map[string]uint64{"a": 10}
	supply := uint64(10)

	SetKey(ctx, balances, "a", 4)
	SetKey(ctx, balances, "b", 6)
	Assign(ctx, &supply, 12)
	require.Equal(t, 3, j.Len())

	j.Rollback()
	assert.Equal(t, map[string]uint64{"a": 10}, balances)
	assert.Equal(t, uint64(10), supply)
}
