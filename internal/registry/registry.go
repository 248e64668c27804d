// Package registry implements the Topic Registry (spec.md §4.2): a
// fixed-capacity directory of named topics at the head of the segment, with
// lock-free reads and semaphore-serialized registration.
//
// Ported from original_source/src/MB_DDF/DDS/TopicRegistry.{h,cpp}.
package registry

import (
	"unsafe"

	"github.com/mbdds/mbdds/internal/shmseg"
	"github.com/mbdds/mbdds/internal/wire"
)

// Registry is a view over the registry header and topic metadata array at
// the head of a segment.
type Registry struct {
	seg  *shmseg.Segment
	base unsafe.Pointer
}

// Topic is a snapshot of one topic's metadata. It is a plain value copied
// out of shared memory, not a live view — callers that need the live ring
// offset/size again should re-fetch via Lookup.
type Topic struct {
	ID     uint32
	Name   string
	Offset uint64
	Size   uint64
}

// Attach wraps seg with a Registry view, running first-writer
// initialization if the segment is freshly created (spec.md §4.2 "First-
// writer initialization").
func Attach(seg *shmseg.Segment) (*Registry, error) {
	base := unsafe.Pointer(&seg.Base()[0])
	r := &Registry{seg: seg, base: base}

	if err := r.seg.Sem().Wait(); err != nil {
		return nil, err
	}
	defer r.seg.Sem().Post()

	magic := wire.Load32(base, offsetMagic())
	if magic != wire.RegistryMagic {
		r.initializeLocked()
		return r, nil
	}

	version := wire.Load32(base, offsetVersion())
	if version != wire.LayoutVersion {
		return nil, wire.NewConfigError("segment was created by an incompatible layout version", wire.ErrVersionMismatch)
	}

	return r, nil
}

func (r *Registry) initializeLocked() {
	clear(r.seg.Base())
	wire.Store32(r.base, offsetMagic(), wire.RegistryMagic)
	wire.Store32(r.base, offsetVersion(), wire.LayoutVersion)
	// next_topic_id starts at 0, not 1: the original's counter starts at 1
	// and fetch_add(1) returns the pre-increment value, so its first topic
	// gets ID 1. Go's Add64 (atomic add-and-fetch) returns the post-increment
	// value instead, so starting one lower reproduces the same ID sequence
	// (1, 2, 3, ...) the original assigns.
	wire.Store64(r.base, offsetNextTopicID(), 0)
	wire.Store64(r.base, offsetTopicCount(), 0)
}

// topicCount acquire-loads the number of live slots.
func (r *Registry) topicCount() uint64 {
	return wire.Load64(r.base, offsetTopicCount())
}

// Register finds or creates the named topic's slot, allocating ringSize
// bytes for its ring arena. Registration is serialized by the segment
// semaphore (spec.md §4.2 "Registration algorithm").
func (r *Registry) Register(name string, ringSize uint64) (Topic, error) {
	if !wire.ValidTopicName(name) {
		return Topic{}, wire.NewConfigError("invalid topic name "+name, wire.ErrInvalidTopicName)
	}

	if err := r.seg.Sem().Wait(); err != nil {
		return Topic{}, err
	}
	defer r.seg.Sem().Post()

	if t, ok := r.lookupByNameLocked(name); ok {
		return t, nil
	}

	count := r.topicCount()
	if count >= wire.MaxTopics {
		return Topic{}, wire.NewCapacityError("topic registry is full")
	}

	slotIdx := -1
	var offset uint64 = wire.RegistryDataOffset
	for i := 0; i < wire.MaxTopics; i++ {
		slotOff := wire.TopicSlotOffset(i)
		id := wire.Load32(r.base, slotOff)
		if id == 0 && slotIdx < 0 {
			slotIdx = i
			continue
		}
		if id != 0 {
			size := wire.Load64(r.base, slotOff+topicRingSizeOffset)
			end := offset + wire.AlignUp64(size)
			if end < offset {
				return Topic{}, wire.NewCapacityError("ring offset arithmetic overflowed")
			}
			offset = end
		}
	}
	if slotIdx < 0 {
		return Topic{}, wire.NewCapacityError("topic registry is full")
	}

	end := offset + wire.AlignUp64(ringSize)
	if end < offset || end > r.seg.Size() {
		return Topic{}, wire.NewCapacityError("ring allocation would exceed segment size")
	}

	// Matches original's topic_id = next_topic_id.fetch_add(1): Add64 returns
	// the post-increment value, and the counter starts at 0, so this yields
	// the same 1, 2, 3, ... sequence the original's pre-increment fetch_add
	// produces starting from 1.
	id := uint32(wire.Add64(r.base, offsetNextTopicID(), 1))

	slotOff := wire.TopicSlotOffset(slotIdx)
	nameOff := slotOff + topicNameOffset
	wire.WriteName(r.seg.Base()[nameOff:nameOff+wire.TopicNameSize], name)
	wire.Store64(r.base, slotOff+topicRingOffsetOffset, offset)
	wire.Store64(r.base, slotOff+topicRingSizeOffset, ringSize)
	wire.Store32(r.base, slotOff, id) // publishes the slot; must be last

	wire.Add64(r.base, offsetTopicCount(), 1)

	return Topic{ID: id, Name: name, Offset: offset, Size: ringSize}, nil
}

// Lookup returns the topic registered under name, if any. Lock-free: a
// linear scan over all MaxTopics slots, skipping slots whose ID is 0.
func (r *Registry) Lookup(name string) (Topic, bool) {
	return r.lookupByNameLocked(name)
}

func (r *Registry) lookupByNameLocked(name string) (Topic, bool) {
	for i := 0; i < wire.MaxTopics; i++ {
		slotOff := wire.TopicSlotOffset(i)
		id := wire.Load32(r.base, slotOff)
		if id == 0 {
			continue
		}
		nameOff := slotOff + topicNameOffset
		if wire.ReadName(r.seg.Base()[nameOff:nameOff+wire.TopicNameSize]) == name {
			return Topic{
				ID:     id,
				Name:   name,
				Offset: wire.Load64(r.base, slotOff+topicRingOffsetOffset),
				Size:   wire.Load64(r.base, slotOff+topicRingSizeOffset),
			}, true
		}
	}
	return Topic{}, false
}

// LookupByID returns the topic with the given ID, if any.
func (r *Registry) LookupByID(id uint32) (Topic, bool) {
	if id == 0 {
		return Topic{}, false
	}
	for i := 0; i < wire.MaxTopics; i++ {
		slotOff := wire.TopicSlotOffset(i)
		slotID := wire.Load32(r.base, slotOff)
		if slotID != id {
			continue
		}
		nameOff := slotOff + topicNameOffset
		return Topic{
			ID:     slotID,
			Name:   wire.ReadName(r.seg.Base()[nameOff : nameOff+wire.TopicNameSize]),
			Offset: wire.Load64(r.base, slotOff+topicRingOffsetOffset),
			Size:   wire.Load64(r.base, slotOff+topicRingSizeOffset),
		}, true
	}
	return Topic{}, false
}

// All returns every registered topic, in slot order. Lock-free.
func (r *Registry) All() []Topic {
	count := r.topicCount()
	out := make([]Topic, 0, count)
	for i := 0; i < wire.MaxTopics; i++ {
		slotOff := wire.TopicSlotOffset(i)
		id := wire.Load32(r.base, slotOff)
		if id == 0 {
			continue
		}
		nameOff := slotOff + topicNameOffset
		out = append(out, Topic{
			ID:     id,
			Name:   wire.ReadName(r.seg.Base()[nameOff : nameOff+wire.TopicNameSize]),
			Offset: wire.Load64(r.base, slotOff+topicRingOffsetOffset),
			Size:   wire.Load64(r.base, slotOff+topicRingSizeOffset),
		})
	}
	return out
}

// Base returns the underlying segment's base pointer, for internal/ring to
// compute absolute offsets from a Topic's relative ring offset.
func (r *Registry) Base() unsafe.Pointer { return r.base }

// Bytes returns the underlying segment's byte slice.
func (r *Registry) Bytes() []byte { return r.seg.Base() }
