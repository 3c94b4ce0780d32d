/**
 * Replay Source.
 *
 * An in-memory Source implementation that feeds a fixed slice of
 * models.PacketRecord through the sink, used by pipeline tests that
 * need deterministic packet injection without a live NIC.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package capture

import (
	"context"

	"github.com/kleaSCM/sentryd/internal/models"
)

// ReplaySource delivers Records in order, back to back with no pacing,
// then returns as if the sniffer reached end of input.
type ReplaySource struct {
	Records []*models.PacketRecord
	stop    chan struct{}
}

// NewReplaySource builds a source that will deliver records in order on
// Start.
func NewReplaySource(records []*models.PacketRecord) *ReplaySource {
	return &ReplaySource{Records: records, stop: make(chan struct{})}
}

// Open is a no-op: there is no handle to activate.
func (s *ReplaySource) Open() error { return nil }

// Start delivers every record to sink, in order, checking ctx and Stop
// between deliveries so tests can exercise shutdown mid-replay.
func (s *ReplaySource) Start(ctx context.Context, sink Sink) error {
	for i, rec := range s.Records {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		default:
		}
		if rec.Seq == 0 {
			rec.Seq = uint64(i + 1)
		}
		sink(rec)
	}
	return nil
}

// Stop halts any in-progress Start loop.
func (s *ReplaySource) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}
