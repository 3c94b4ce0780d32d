/**
 * Ingress Queue.
 *
 * A bounded, drop-on-full hand-off between the capture producer and
 * the worker pool. The producer never blocks; consumers
 * block with a bounded wait and recheck the stop signal so shutdown is
 * always timely, even under a stalled producer.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package queue

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kleaSCM/sentryd/internal/models"
	"github.com/kleaSCM/sentryd/internal/telemetry"
)

// DefaultCapacity is the default fixed queue capacity.
const DefaultCapacity = 1000

// popTimeout bounds how long Pop blocks before rechecking ctx/stop.
const popTimeout = time.Second

// Bounded is a fixed-capacity MPMC queue of PacketRecord. Push never
// blocks; when full it drops the record and increments
// metrics.QueueDropped.
type Bounded struct {
	ch       chan *models.PacketRecord
	metrics  *telemetry.Metrics
	seq      atomic.Uint64
	capacity int
}

// New creates a Bounded queue of the given capacity. capacity <= 0
// falls back to DefaultCapacity.
func New(capacity int, m *telemetry.Metrics) *Bounded {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bounded{
		ch:       make(chan *models.PacketRecord, capacity),
		metrics:  m,
		capacity: capacity,
	}
}

// Push submits a record without blocking. It stamps Seq and Mono
// before attempting to enqueue. Returns false if the record was
// dropped because the queue was full.
func (q *Bounded) Push(rec *models.PacketRecord) bool {
	rec.Seq = q.seq.Add(1)
	rec.Mono = time.Now()

	select {
	case q.ch <- rec:
		return true
	default:
		if q.metrics != nil {
			q.metrics.QueueDropped.Inc()
		}
		return false
	}
}

// Pop blocks for up to popTimeout waiting for a record, then returns
// (nil, false) so the caller can recheck ctx/stop signals before
// retrying — this bounds shutdown latency regardless of producer
// activity.
func (q *Bounded) Pop(ctx context.Context) (*models.PacketRecord, bool) {
	timer := time.NewTimer(popTimeout)
	defer timer.Stop()

	select {
	case rec := <-q.ch:
		return rec, true
	case <-ctx.Done():
		return nil, false
	case <-timer.C:
		return nil, false
	}
}

// Len reports the number of records currently buffered, for tests that
// assert the queue never exceeds capacity under load.
func (q *Bounded) Len() int { return len(q.ch) }

// Capacity returns the queue's fixed capacity.
func (q *Bounded) Capacity() int { return q.capacity }
