// Package monitor implements the read-only observability interface of
// spec.md §6: it maps a segment PROT_READ only and walks the registry and
// ring headers directly, bypassing any program-held view of the data the
// way the writing side would.
//
// Ported from
// original_source/ddf_lib/include/MB_DDF/Monitor/SharedMemoryAccessor.h,
// whose explicit goal ("确保监控数据的独立性和准确性" — keep monitoring data
// independent of and accurate relative to program state) this package keeps:
// Snapshot never consults internal/registry or internal/ring's own
// bookkeeping, only the raw bytes.
package monitor

import (
	"unsafe"

	"github.com/mbdds/mbdds/internal/shmseg"
	"github.com/mbdds/mbdds/internal/wire"
)

// Monitor is a read-only attachment to a segment.
type Monitor struct {
	seg *shmseg.Segment
}

// Open maps the named segment read-only. The segment must already exist and
// be at least wire.MinSegmentSize bytes.
func Open(segmentName string) (*Monitor, error) {
	seg, err := shmseg.OpenReadOnly(segmentName)
	if err != nil {
		return nil, err
	}
	return &Monitor{seg: seg}, nil
}

// Close unmaps the segment.
func (m *Monitor) Close() error {
	return m.seg.Close()
}

// SubscriberSnapshot is one subscriber's recorded state in a ring's table.
type SubscriberSnapshot struct {
	ID               uint64
	Name             string
	ReadPos          uint64
	LastReadSequence uint64
	Timestamp        uint64
}

// PublisherSnapshot is the ring's single publisher registration, if any.
type PublisherSnapshot struct {
	ID    uint64
	Name  string
	Valid bool
}

// TopicSnapshot is one topic's full observable state: its registry entry
// plus its ring's header, publisher, and subscriber table.
type TopicSnapshot struct {
	ID                uint32
	Name              string
	RingOffset        uint64
	RingSize          uint64
	CurrentSequence   uint64
	MessageCount      uint64
	FreeBytes         uint64
	ActiveSubscribers uint32
	Publisher         PublisherSnapshot
	Subscribers       []SubscriberSnapshot
}

// Snapshot captures every registered topic's current state in one
// unlocked pass. Because no semaphore is held, a snapshot can observe a
// registration or publish that is concurrently in flight; that's the
// tradeoff of monitoring without taking the writer's lock (spec.md §6).
func (m *Monitor) Snapshot() []TopicSnapshot {
	base := unsafe.Pointer(&m.seg.Base()[0])

	magic := wire.Load32(base, regOffsetMagic)
	if magic != wire.RegistryMagic {
		return nil
	}

	count := wire.Load64(base, regOffsetTopicCount)
	out := make([]TopicSnapshot, 0, count)

	for i := 0; i < wire.MaxTopics; i++ {
		slotOff := wire.TopicSlotOffset(i)
		id := wire.Load32(base, slotOff)
		if id == 0 {
			continue
		}

		nameOff := slotOff + topicNameOffset
		name := wire.ReadName(m.seg.Base()[nameOff : nameOff+wire.TopicNameSize])
		ringOffset := wire.Load64(base, slotOff+topicRingOffsetOffset)
		ringSize := wire.Load64(base, slotOff+topicRingSizeOffset)

		snap := TopicSnapshot{ID: id, Name: name, RingOffset: ringOffset, RingSize: ringSize}
		if ringOffset+ringSize <= m.seg.Size() {
			m.fillRingSnapshot(&snap, ringOffset)
		}
		out = append(out, snap)
	}

	return out
}

func (m *Monitor) fillRingSnapshot(snap *TopicSnapshot, ringOffset uint64) {
	if ringOffset+wire.RingDataOffset > m.seg.Size() {
		return
	}
	ringBase := unsafe.Pointer(uintptr(unsafe.Pointer(&m.seg.Base()[0])) + uintptr(ringOffset))

	if wire.Load32(ringBase, ringOffsetMagic) != wire.RingMagic {
		return
	}

	capacity := wire.Load64(ringBase, ringOffsetCapacity)
	writePos := wire.Load64(ringBase, ringOffsetWritePos)
	seq := wire.Load64(ringBase, ringOffsetCurrentSeq)

	snap.CurrentSequence = seq
	snap.MessageCount = seq
	if capacity > writePos {
		snap.FreeBytes = capacity - writePos
	}

	pubID := wire.Load64(ringBase, ringOffsetPublisherID)
	if pubID != 0 {
		nameBytes := m.seg.Base()[ringOffset+ringOffsetPublisherName : ringOffset+ringOffsetPublisherName+wire.PublisherNameSize]
		snap.Publisher = PublisherSnapshot{ID: pubID, Name: wire.ReadName(nameBytes), Valid: true}
	}

	for i := 0; i < wire.MaxSubscribers; i++ {
		slotOff := wire.SubscriberSlotOffset(i)
		slotBase := unsafe.Pointer(uintptr(ringBase) + uintptr(slotOff))
		id := wire.Load64(slotBase, subOffsetID)
		if id == 0 {
			continue
		}
		nameOff := ringOffset + slotOff + subOffsetName
		snap.Subscribers = append(snap.Subscribers, SubscriberSnapshot{
			ID:               id,
			Name:             wire.ReadName(m.seg.Base()[nameOff : nameOff+wire.SubscriberNameSize]),
			ReadPos:          wire.Load64(slotBase, subOffsetReadPos),
			LastReadSequence: wire.Load64(slotBase, subOffsetLastSeq),
			Timestamp:        wire.Load64(slotBase, subOffsetTimestamp),
		})
		snap.ActiveSubscribers++
	}
}
