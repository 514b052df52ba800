package inflight

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBeginSupersedesPrevious(t *testing.T) {
	var tr Tracker
	firstCtx, first := tr.Begin(context.Background(), "products")
	_, second := tr.Begin(context.Background(), "products")

	assert.False(t, first.Current())
	assert.True(t, second.Current())
	assert.ErrorIs(t, firstCtx.Err(), context.Canceled)

	first.Done()
	assert.True(t, second.Current(), "stale Done must not release the newer ticket")
	second.Done()
	assert.Zero(t, tr.pending())
}

func TestKeysAreIndependent(t *testing.T) {
	var tr Tracker
	_, a := tr.Begin(context.Background(), "company")
	_, b := tr.Begin(context.Background(), "key")
	assert.True(t, a.Current())
	assert.True(t, b.Current())
	assert.Equal(t, 2, tr.pending())
}

func TestDoneCancelsContext(t *testing.T) {
	var tr Tracker
	ctx, tk := tr.Begin(context.Background(), "k")
	tk.Done()
	tk.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.False(t, tk.Current())
}

func TestZeroTicket(t *testing.T) {
	var tk Ticket
	assert.False(t, tk.Current())
	tk.Done()
}
