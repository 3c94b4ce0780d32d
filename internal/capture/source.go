/**
 * Packet Source Adapter.
 *
 * Contract for C1: Start attaches a sink invoked once per
 * captured packet with exactly-once semantics; Stop causes the
 * underlying sniffer to return after draining its current batch. The OS
 * may silently drop packets on buffer overflow — reported only via
 * counters, never surfaced as an error to the sink.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package capture

import (
	"context"

	"github.com/kleaSCM/sentryd/internal/models"
)

// Sink receives one PacketRecord per captured packet. Implementations
// must return quickly — the source blocks its capture loop on Sink
// returning, so Sink is expected to be a non-blocking enqueue (C2).
type Sink func(*models.PacketRecord)

// Source is implemented by every packet ingestion backend (live pcap,
// in-memory replay for tests).
type Source interface {
	// Open validates and prepares the source (e.g. activates a pcap
	// handle) without starting delivery. Failure to open is a fatal
	// startup error.
	Open() error
	// Start runs the capture loop, invoking sink for each packet, until
	// ctx is cancelled or Stop is called. Start blocks until the loop
	// exits.
	Start(ctx context.Context, sink Sink) error
	// Stop signals the capture loop to return after its current batch.
	Stop()
}
