package orders

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// Mutation edits a locked copy of an order. Returning changed=false skips the
// write; returning an error aborts without persisting anything.
type Mutation func(o *Order) (changed bool, err error)

// Repository persists orders. Update runs fn while holding the order's lock,
// which makes check-then-act sequences atomic per order.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id int64) (*Order, error)
	Update(ctx context.Context, id int64, fn Mutation) (*Order, error)

	// ListByUser and List return newest orders first.
	ListByUser(ctx context.Context, userID int64) ([]*Order, error)
	List(ctx context.Context, f ListFilter) ([]*Order, error)
	CountByStatus(ctx context.Context) (map[Status]int64, error)
	// RevenueByStatus sums total_price per status.
	RevenueByStatus(ctx context.Context) (map[Status]int64, error)
}

// ListFilter pages the admin order list. A zero Status matches every status;
// a non-positive Limit means DefaultPageSize.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	f.Limit = min(f.Limit, MaxPageSize)
	f.Offset = max(f.Offset, 0)
	return f
}

// MemoryRepository is the in-process backend. Reads hand out copies so callers
// can never mutate stored state.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	orders map[int64]*Order
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[int64]*Order)}
}

func (r *MemoryRepository) Create(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	o.ID = r.nextID
	r.orders[o.ID] = o.Clone()
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id int64) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (r *MemoryRepository) Update(_ context.Context, id int64, fn Mutation) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	work := cur.Clone()
	changed, err := fn(work)
	if err != nil {
		return nil, err
	}
	if changed {
		r.orders[id] = work.Clone()
	}
	return work, nil
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID int64) ([]*Order, error) {
	return r.collect(func(o *Order) bool { return o.UserID == userID }), nil
}

func (r *MemoryRepository) List(_ context.Context, f ListFilter) ([]*Order, error) {
	f = f.normalized()
	all := r.collect(func(o *Order) bool { return f.Status == 0 || o.Status == f.Status })
	if f.Offset >= len(all) {
		return []*Order{}, nil
	}
	return all[f.Offset:min(f.Offset+f.Limit, len(all))], nil
}

func (r *MemoryRepository) CountByStatus(_ context.Context) (map[Status]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[Status]int64)
	for _, o := range r.orders {
		out[o.Status]++
	}
	return out, nil
}

func (r *MemoryRepository) RevenueByStatus(_ context.Context) (map[Status]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[Status]int64)
	for _, o := range r.orders {
		out[o.Status] += o.TotalPrice
	}
	return out, nil
}

func (r *MemoryRepository) collect(keep func(*Order) bool) []*Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Order, 0)
	for _, o := range r.orders {
		if keep(o) {
			out = append(out, o.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}
