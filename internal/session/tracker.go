/**
 * Session Tracker.
 *
 * Groups packets into 5-tuple flows, expires idle sessions, and
 * computes flow-level features on demand. Keeps an append-only packet
 * history per flow behind an update-or-create-then-append shape,
 * sharded across several mutexes to avoid one contended lock across all
 * flows.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package session

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/kleaSCM/sentryd/internal/models"
)

const shardCount = 16

// DefaultIdleTimeout is the default session_idle_timeout.
const DefaultIdleTimeout = 60 * time.Second

type shard struct {
	mu       sync.Mutex
	sessions map[models.FlowKey]*models.Session
}

// Tracker maintains the keyed Session table.
type Tracker struct {
	shards      [shardCount]*shard
	IdleTimeout time.Duration
}

// New creates a Tracker with the given idle timeout. timeout <= 0
// falls back to DefaultIdleTimeout.
func New(timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	t := &Tracker{IdleTimeout: timeout}
	for i := range t.shards {
		t.shards[i] = &shard{sessions: make(map[models.FlowKey]*models.Session)}
	}
	return t
}

func (t *Tracker) shardFor(key models.FlowKey) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.EndpointA))
	_, _ = h.Write([]byte(key.EndpointB))
	_, _ = h.Write([]byte(key.Protocol))
	return t.shards[h.Sum32()%shardCount]
}

// Add appends the packet to its session's history, creating the
// session on first sight, and opportunistically expires the session's
// own shard for entries older than IdleTimeout.
// Returns the session as of this update.
func (t *Tracker) Add(rec *models.PacketRecord) *models.Session {
	key := rec.Key()
	ipLen := rec.TotalLen

	sh := t.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[key]
	if !ok {
		sess = &models.Session{Key: key}
		sh.sessions[key] = sess
	}
	sess.Touch(models.PacketRef{Seq: rec.Seq, Timestamp: rec.CaptureAt, IPLen: ipLen})

	t.expireShardLocked(sh, rec.CaptureAt)

	// Hand back a copy: other workers keep appending to the live session.
	snap := *sess
	snap.Packets = append([]models.PacketRef(nil), sess.Packets...)
	return &snap
}

// Get returns the current session for key, if any, without mutating
// the table.
func (t *Tracker) Get(key models.FlowKey) (*models.Session, bool) {
	sh := t.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.sessions[key]
	return s, ok
}

// Expire removes sessions idle for longer than IdleTimeout across all
// shards, as run periodically by the background sweeper.
func (t *Tracker) Expire(now time.Time) int {
	removed := 0
	for _, sh := range t.shards {
		sh.mu.Lock()
		removed += t.expireShardLocked(sh, now)
		sh.mu.Unlock()
	}
	return removed
}

func (t *Tracker) expireShardLocked(sh *shard, now time.Time) int {
	removed := 0
	for key, sess := range sh.sessions {
		if sess.Idle(now, t.IdleTimeout) {
			delete(sh.sessions, key)
			removed++
		}
	}
	return removed
}

// Count returns the total number of live sessions, for tests and
// control-plane stats.
func (t *Tracker) Count() int {
	n := 0
	for _, sh := range t.shards {
		sh.mu.Lock()
		n += len(sh.sessions)
		sh.mu.Unlock()
	}
	return n
}

// RunSweeper blocks, calling Expire once per period until ctx is
// cancelled. Intended to be launched in its own goroutine.
func (t *Tracker) RunSweeper(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.Expire(now)
		}
	}
}
