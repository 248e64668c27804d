package monitor

import (
	"unsafe"

	"github.com/mbdds/mbdds/internal/wire"
)

// Offsets derived the same way internal/registry/offsets.go and
// internal/ring/offsets.go derive theirs: via unsafe.Offsetof against the
// shared wire structs, never hand-copied numbers.
const (
	regOffsetMagic        = uint64(unsafe.Offsetof(wire.RegistryHeader{}.MagicNumber))
	regOffsetTopicCount   = uint64(unsafe.Offsetof(wire.RegistryHeader{}.TopicCount))
	topicNameOffset       = uint64(unsafe.Offsetof(wire.TopicMetadata{}.Name))
	topicRingOffsetOffset = uint64(unsafe.Offsetof(wire.TopicMetadata{}.RingOffset))
	topicRingSizeOffset   = uint64(unsafe.Offsetof(wire.TopicMetadata{}.RingSize))

	ringOffsetMagic         = uint64(unsafe.Offsetof(wire.RingHeader{}.Magic))
	ringOffsetWritePos      = uint64(unsafe.Offsetof(wire.RingHeader{}.WritePos))
	ringOffsetCurrentSeq    = uint64(unsafe.Offsetof(wire.RingHeader{}.CurrentSequence))
	ringOffsetCapacity      = uint64(unsafe.Offsetof(wire.RingHeader{}.Capacity))
	ringOffsetPublisherID   = uint64(unsafe.Offsetof(wire.RingHeader{}.PublisherID))
	ringOffsetPublisherName = uint64(unsafe.Offsetof(wire.RingHeader{}.PublisherName))

	subOffsetID        = uint64(unsafe.Offsetof(wire.SubscriberSlot{}.SubscriberID))
	subOffsetName      = uint64(unsafe.Offsetof(wire.SubscriberSlot{}.Name))
	subOffsetReadPos   = uint64(unsafe.Offsetof(wire.SubscriberSlot{}.ReadPos))
	subOffsetLastSeq   = uint64(unsafe.Offsetof(wire.SubscriberSlot{}.LastReadSequence))
	subOffsetTimestamp = uint64(unsafe.Offsetof(wire.SubscriberSlot{}.Timestamp))
)
