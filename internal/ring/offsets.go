package ring

import (
	"unsafe"

	"github.com/mbdds/mbdds/internal/wire"
)

// Field offsets are derived from internal/wire's struct layouts via
// unsafe.Offsetof rather than duplicated as magic numbers, so a field
// reorder there can't silently desync this package (see
// internal/registry/offsets.go for the same pattern).
var (
	hdrMagicOff       = uint64(unsafe.Offsetof(wire.RingHeader{}.Magic))
	hdrWritePosOff    = uint64(unsafe.Offsetof(wire.RingHeader{}.WritePos))
	hdrCurrentSeqOff  = uint64(unsafe.Offsetof(wire.RingHeader{}.CurrentSequence))
	hdrNotifyCountOff = uint64(unsafe.Offsetof(wire.RingHeader{}.NotificationCount))
	hdrSubCountOff    = uint64(unsafe.Offsetof(wire.RingHeader{}.SubscriberCount))
	hdrTimestampOff   = uint64(unsafe.Offsetof(wire.RingHeader{}.Timestamp))
	hdrCapacityOff    = uint64(unsafe.Offsetof(wire.RingHeader{}.Capacity))
	hdrDataOffsetOff  = uint64(unsafe.Offsetof(wire.RingHeader{}.DataOffset))
	hdrPublisherIDOff = uint64(unsafe.Offsetof(wire.RingHeader{}.PublisherID))
	hdrPublisherNmOff = uint64(unsafe.Offsetof(wire.RingHeader{}.PublisherName))

	subIDOff        = uint64(unsafe.Offsetof(wire.SubscriberSlot{}.SubscriberID))
	subNameOff      = uint64(unsafe.Offsetof(wire.SubscriberSlot{}.Name))
	subReadPosOff   = uint64(unsafe.Offsetof(wire.SubscriberSlot{}.ReadPos))
	subLastSeqOff   = uint64(unsafe.Offsetof(wire.SubscriberSlot{}.LastReadSequence))
	subTimestampOff = uint64(unsafe.Offsetof(wire.SubscriberSlot{}.Timestamp))

	recMagicOff     = uint64(unsafe.Offsetof(wire.RecordHeader{}.Magic))
	recTopicIDOff   = uint64(unsafe.Offsetof(wire.RecordHeader{}.TopicID))
	recSequenceOff  = uint64(unsafe.Offsetof(wire.RecordHeader{}.Sequence))
	recTimestampOff = uint64(unsafe.Offsetof(wire.RecordHeader{}.Timestamp))
	recDataSizeOff  = uint64(unsafe.Offsetof(wire.RecordHeader{}.DataSize))
	recChecksumOff  = uint64(unsafe.Offsetof(wire.RecordHeader{}.Checksum))
)
