package ring

import "github.com/mbdds/mbdds/internal/wire"

// SubscriberInfo is one entry in Statistics.Subscribers.
type SubscriberInfo struct {
	ID   uint64
	Name string
}

// Statistics is a read-only snapshot of a ring's state (spec.md §4.3.8). It
// takes no lock: every field is an acquire-loaded atomic or a lock-free scan
// of the subscriber table.
type Statistics struct {
	CurrentSequence   uint64
	TotalMessages     uint64
	AvailableSpace    uint64
	ActiveSubscribers uint32
	Subscribers       []SubscriberInfo
}

// Stats composes a Statistics snapshot.
func (r *Ring) Stats() Statistics {
	seq := wire.Load64(r.base, hdrCurrentSeqOff)
	writePos := wire.Load64(r.base, hdrWritePosOff)

	stats := Statistics{
		CurrentSequence: seq,
		TotalMessages:   seq,
		AvailableSpace:  r.capacity - writePos,
	}

	for i := 0; i < wire.MaxSubscribers; i++ {
		slot := r.subscriberSlot(i)
		id := wire.Load64(slot, subIDOff)
		if id == 0 {
			continue
		}
		stats.ActiveSubscribers++
		stats.Subscribers = append(stats.Subscribers, SubscriberInfo{
			ID:   id,
			Name: wire.ReadName(r.subscriberNameBytes(i)),
		})
	}

	return stats
}

// Capacity returns the ring's data-region capacity in bytes.
func (r *Ring) Capacity() uint64 { return r.capacity }

// Empty reports whether no message has ever been published.
func (r *Ring) Empty() bool {
	return wire.Load64(r.base, hdrCurrentSeqOff) == 0
}
