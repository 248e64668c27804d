package registry

import (
	"unsafe"

	"github.com/mbdds/mbdds/internal/wire"
)

// These offsets are derived from wire.RegistryHeader/wire.TopicMetadata's
// actual field layout via unsafe.Offsetof rather than hand-copied numbers,
// so a field reorder in internal/wire can't silently desync this package.
const (
	topicNameOffset       = uint64(unsafe.Offsetof(wire.TopicMetadata{}.Name))
	topicRingOffsetOffset = uint64(unsafe.Offsetof(wire.TopicMetadata{}.RingOffset))
	topicRingSizeOffset   = uint64(unsafe.Offsetof(wire.TopicMetadata{}.RingSize))
)

func offsetMagic() uint64       { return uint64(unsafe.Offsetof(wire.RegistryHeader{}.MagicNumber)) }
func offsetVersion() uint64     { return uint64(unsafe.Offsetof(wire.RegistryHeader{}.Version)) }
func offsetNextTopicID() uint64 { return uint64(unsafe.Offsetof(wire.RegistryHeader{}.NextTopicID)) }
func offsetTopicCount() uint64  { return uint64(unsafe.Offsetof(wire.RegistryHeader{}.TopicCount)) }
