package kafka

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

type partitionKey struct {
	topic     string
	partition int
}

type inflight struct {
	msg  kafka.Message
	done bool
}

// offsetTracker turns out-of-order completions from keyed workers into
// in-order commits. Kafka commits are cumulative per partition, so only the
// contiguous prefix of finished messages may be committed.
type offsetTracker struct {
	mu        sync.Mutex
	queues    map[partitionKey][]inflight
	committed map[partitionKey]int64
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{
		queues:    make(map[partitionKey][]inflight),
		committed: make(map[partitionKey]int64),
	}
}

// track records m in fetch order. A fetched offset at or below the last one
// tracked means the partition was reassigned and replayed from its committed
// offset, so the old queue is dropped.
func (t *offsetTracker) track(m kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := partitionKey{m.Topic, m.Partition}
	q := t.queues[k]
	if n := len(q); n > 0 && m.Offset <= q[n-1].msg.Offset {
		q = nil
		delete(t.committed, k)
	}
	t.queues[k] = append(q, inflight{msg: m})
}

// done marks m finished and returns the highest message whose offset, and all
// before it, are finished. ok is false while an earlier message is in flight.
func (t *offsetTracker) done(m kafka.Message) (kafka.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := partitionKey{m.Topic, m.Partition}
	q := t.queues[k]
	for i := range q {
		if q[i].msg.Offset == m.Offset {
			q[i].done = true
			break
		}
	}

	n := 0
	for n < len(q) && q[n].done {
		n++
	}
	if n == 0 {
		return kafka.Message{}, false
	}
	last := q[n-1].msg
	t.queues[k] = q[n:]

	if prev, seen := t.committed[k]; seen && last.Offset <= prev {
		return kafka.Message{}, false
	}
	t.committed[k] = last.Offset
	return last, true
}
