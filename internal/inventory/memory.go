package inventory

import (
	"context"
	"sync"
)

// MemoryLedger keeps stock in process. A single mutex serializes all
// mutations, which is stricter than the per-book requirement.
type MemoryLedger struct {
	mu    sync.RWMutex
	stock map[int64]int
	price map[int64]int64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{stock: make(map[int64]int), price: make(map[int64]int64)}
}

// Put registers a book with an absolute stock level (catalog seeding).
func (l *MemoryLedger) Put(bookID int64, stock int) {
	if stock < 0 {
		stock = 0
	}
	l.mu.Lock()
	l.stock[bookID] = stock
	l.mu.Unlock()
}

// SetPrice sets a book's catalog price. Books without one are free.
func (l *MemoryLedger) SetPrice(bookID int64, price int64) {
	if price < 0 {
		price = 0
	}
	l.mu.Lock()
	l.price[bookID] = price
	l.mu.Unlock()
}

func (l *MemoryLedger) Price(_ context.Context, bookID int64) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.stock[bookID]; !ok {
		return 0, ErrBookNotFound
	}
	return l.price[bookID], nil
}

func (l *MemoryLedger) Reserve(_ context.Context, bookID int64, qty int) (Book, error) {
	if qty <= 0 {
		return Book{}, ErrInvalidQuantity
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.stock[bookID]
	if !ok {
		return Book{}, ErrBookNotFound
	}
	if cur < qty {
		return Book{}, &InsufficientStockError{BookID: bookID, Requested: qty, Available: cur}
	}
	l.stock[bookID] = cur - qty
	return withStock(bookID, cur-qty), nil
}

func (l *MemoryLedger) Release(_ context.Context, bookID int64, qty int) (Book, error) {
	if qty <= 0 {
		return Book{}, ErrInvalidQuantity
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.stock[bookID]
	if !ok {
		return Book{}, ErrBookNotFound
	}
	l.stock[bookID] = cur + qty
	return withStock(bookID, cur+qty), nil
}

func (l *MemoryLedger) HasStock(_ context.Context, bookID int64, qty int) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cur, ok := l.stock[bookID]
	if !ok {
		return false, ErrBookNotFound
	}
	return cur >= qty, nil
}

func (l *MemoryLedger) Get(_ context.Context, bookID int64) (Book, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cur, ok := l.stock[bookID]
	if !ok {
		return Book{}, ErrBookNotFound
	}
	return withStock(bookID, cur), nil
}
