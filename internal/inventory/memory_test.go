package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-bookstore-orders/internal/apperr"
)

func TestMemoryLedger_ReserveRelease(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Put(1, 5)

	b, err := l.Reserve(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Stock)
	assert.True(t, b.IsAvailable)

	b, err = l.Reserve(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Stock)
	assert.False(t, b.IsAvailable)

	b, err = l.Release(ctx, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, b.Stock)
	assert.True(t, b.IsAvailable)
}

func TestMemoryLedger_InsufficientStockLeavesStockUnchanged(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Put(7, 2)

	_, err := l.Reserve(ctx, 7, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.True(t, apperr.IsConflict(err))

	detail, ok := AsInsufficient(err)
	require.True(t, ok)
	assert.Equal(t, int64(7), detail.BookID)
	assert.Equal(t, 3, detail.Requested)
	assert.Equal(t, 2, detail.Available)

	b, err := l.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Stock)
}

func TestMemoryLedger_Errors(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Put(1, 10)

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{"reserve zero", func() error { _, err := l.Reserve(ctx, 1, 0); return err }, apperr.ErrValidation},
		{"reserve negative", func() error { _, err := l.Reserve(ctx, 1, -2); return err }, apperr.ErrValidation},
		{"release zero", func() error { _, err := l.Release(ctx, 1, 0); return err }, apperr.ErrValidation},
		{"reserve unknown", func() error { _, err := l.Reserve(ctx, 99, 1); return err }, ErrBookNotFound},
		{"release unknown", func() error { _, err := l.Release(ctx, 99, 1); return err }, ErrBookNotFound},
		{"get unknown", func() error { _, err := l.Get(ctx, 99); return err }, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), tt.wantErr)
		})
	}

	b, err := l.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, b.Stock)
}

func TestMemoryLedger_HasStock(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Put(1, 3)

	ok, err := l.HasStock(ctx, 1, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.HasStock(ctx, 1, 4)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = l.HasStock(ctx, 2, 1)
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestMemoryLedger_ConcurrentReserveNeverOversells(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Put(1, 50)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Reserve(ctx, 1, 1); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	b, err := l.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 50, granted)
	assert.Equal(t, 0, b.Stock)
	assert.False(t, b.IsAvailable)
}

func TestMemoryLedger_Price(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Put(1, 5)
	l.Put(2, 5)
	l.SetPrice(1, 89000)

	p, err := l.Price(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(89000), p)

	p, err = l.Price(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, p)

	_, err = l.Price(ctx, 3)
	assert.ErrorIs(t, err, ErrBookNotFound)
}
