// Package ring implements the lock-free ring buffer (spec.md §4.3): per-topic
// single-publisher/multi-subscriber message arenas with overwrite-on-wrap
// semantics, futex-based notification, and self-describing, CRC-validated
// records.
//
// Ported from original_source/src/MB_DDF/DDS/RingBuffer.{h,cpp}, generalized
// from that file's single-arena-per-process design to one Ring per attached
// topic.
package ring

import (
	"hash/crc32"
	"math"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/mbdds/mbdds/internal/shmseg"
	"github.com/mbdds/mbdds/internal/wire"
)

// Ring is an attached view over one topic's arena: header, subscriber table,
// and data region.
type Ring struct {
	arena            []byte
	base             unsafe.Pointer
	data             []byte
	dataBase         unsafe.Pointer
	capacity         uint64
	sem              *shmseg.Sem
	checksumsEnabled bool
}

// Options configures per-ring behavior that the wire format leaves open.
type Options struct {
	// ChecksumsEnabled controls whether Publish computes and stores a CRC-32
	// over the payload, and whether validation rejects a mismatch. The zero
	// value of Options leaves checksums off; DefaultOptions turns them on.
	ChecksumsEnabled bool
}

// DefaultOptions returns the spec's default behavior: checksums on.
func DefaultOptions() Options { return Options{ChecksumsEnabled: true} }

// Record is an owned snapshot of one message read from the ring. Data is a
// copy: shared-memory bytes backing it may be overwritten by the publisher
// immediately after the read completes.
type Record struct {
	TopicID   uint32
	Sequence  uint64
	Timestamp uint64
	Data      []byte
}

// Subscriber is a stable handle to one slot in the ring's subscriber table.
type Subscriber struct {
	slotBase unsafe.Pointer
	id       uint64
}

// ID returns the subscriber's identifier.
func (s Subscriber) ID() uint64 { return s.id }

// Attach wraps arena (a slice of the segment spanning exactly one topic's
// registered size) as a Ring, running first-writer initialization if the
// arena's magic is absent (spec.md §4.3.1).
func Attach(arena []byte, sem *shmseg.Sem, opts Options) (*Ring, error) {
	if uint64(len(arena)) < wire.RingDataOffset {
		return nil, wire.NewConfigError("ring arena smaller than the fixed header+subscriber-table region", nil)
	}

	base := unsafe.Pointer(&arena[0])
	r := &Ring{
		arena:            arena,
		base:             base,
		data:             arena[wire.RingDataOffset:],
		dataBase:         unsafe.Pointer(&arena[wire.RingDataOffset]),
		sem:              sem,
		checksumsEnabled: opts.ChecksumsEnabled,
	}

	magic := wire.Load32(base, hdrMagicOff)
	if magic != wire.RingMagic {
		clear(arena)
		capacity := uint64(len(arena)) - wire.RingDataOffset
		wire.Store64(base, hdrCapacityOff, capacity)
		wire.Store64(base, hdrDataOffsetOff, wire.RingDataOffset)
		wire.Store32(base, hdrMagicOff, wire.RingMagic)
		r.capacity = capacity
		return r, nil
	}

	r.capacity = wire.Load64(base, hdrCapacityOff)
	return r, nil
}

// monotonicNanos reports nanoseconds since an arbitrary but machine-wide
// fixed epoch (CLOCK_MONOTONIC), matching the original's use of
// std::chrono::steady_clock for message timestamps (spec.md §9): unlike a
// per-process stopwatch, every process reading this ring agrees on the same
// clock.
func monotonicNanos() uint64 {
	var ts unix.Timespec
	unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
	return uint64(ts.Sec)*1e9 + uint64(ts.Nsec)
}

// Publish writes one record carrying topicID and payload, following the
// publish protocol of spec.md §4.3.2.
func (r *Ring) Publish(topicID uint32, payload []byte) error {
	totalSize := wire.TotalRecordSize(uint32(len(payload)))
	if totalSize > r.capacity {
		return wire.NewCapacityError("message too large for ring capacity")
	}

	start := wire.Load64(r.base, hdrWritePosOff) % r.capacity
	// Stricter wrap-to-zero-before-write policy (spec.md §9 Open Question):
	// if the record would cross the capacity boundary, start over at 0
	// instead of splitting it across the wrap point.
	if start+totalSize > r.capacity {
		start = 0
	}

	seq := wire.Add64(r.base, hdrCurrentSeqOff, 1) // fetch_add(1)+1, i.e. the new value
	ts := monotonicNanos()

	var checksum uint32
	if len(payload) > 0 && r.checksumsEnabled {
		checksum = crc32.ChecksumIEEE(payload)
	}

	r.writeRecord(start, topicID, seq, ts, payload, checksum)

	newPos := wire.AlignUp8((start + totalSize) % r.capacity)
	if newPos >= r.capacity {
		newPos = 0
	}
	wire.Store64(r.base, hdrWritePosOff, newPos)
	wire.Store64(r.base, hdrTimestampOff, ts)

	r.notifySubscribers()
	return nil
}

func (r *Ring) writeRecord(start uint64, topicID uint32, seq, ts uint64, payload []byte, checksum uint32) {
	recBase := unsafe.Pointer(uintptr(r.dataBase) + uintptr(start))
	wire.Store32(recBase, recMagicOff, wire.RecordMagic)
	wire.Store32(recBase, recTopicIDOff, topicID)
	wire.Store64(recBase, recSequenceOff, seq)
	wire.Store64(recBase, recTimestampOff, ts)
	wire.Store32(recBase, recDataSizeOff, uint32(len(payload)))
	wire.Store32(recBase, recChecksumOff, checksum)

	if len(payload) > 0 {
		copy(r.data[start+wire.RecordHeaderSize:start+wire.RecordHeaderSize+uint64(len(payload))], payload)
	}
}

func (r *Ring) notifySubscribers() {
	wire.Add32(r.base, hdrNotifyCountOff, 1)
	shmseg.FutexWake(wire.Ptr32(r.base, hdrNotifyCountOff), math.MaxInt32)
}

// WakeWaiters broadcasts on the ring's notification word without writing a
// record, for cooperative cancellation (spec.md §4.3.5, §4.4): Subscriber's
// unsubscribe path calls this to kick any goroutine blocked in
// WaitForMessage out of its futex wait before joining it, the same way
// Subscriber::unsubscribe calls notify_subscribers() directly in the
// original.
func (r *Ring) WakeWaiters() {
	r.notifySubscribers()
}

// Token is a zero-copy reservation returned by BeginMessage (spec.md
// §4.3.3). The caller fills Data() in place, then either Commit or Cancel.
// A Token must not be retained past its Commit/Cancel call: dropping it
// without calling either is equivalent to Cancel, since no shared state is
// mutated until Commit runs.
type Token struct {
	ring     *Ring
	topicID  uint32
	start    uint64
	maxSize  uint32
	reserved bool
}

// Data returns the writable region reserved for this message's payload.
func (t *Token) Data() []byte {
	return t.ring.data[t.start+wire.RecordHeaderSize : t.start+wire.RecordHeaderSize+uint64(t.maxSize)]
}

// BeginMessage reserves space for a message of up to maxSize payload bytes
// without writing a sequence number or notifying subscribers yet.
func (r *Ring) BeginMessage(topicID uint32, maxSize uint32) (*Token, error) {
	totalSize := wire.TotalRecordSize(maxSize)
	if totalSize > r.capacity {
		return nil, wire.NewCapacityError("reservation too large for ring capacity")
	}

	start := wire.Load64(r.base, hdrWritePosOff) % r.capacity
	if start+totalSize > r.capacity {
		start = 0
	}

	return &Token{ring: r, topicID: topicID, start: start, maxSize: maxSize, reserved: true}, nil
}

// Commit publishes the reserved message with actualSize payload bytes
// already written into Data(), running steps 3.b-6 of spec.md §4.3.2.
func (t *Token) Commit(actualSize uint32) error {
	if !t.reserved {
		return wire.NewPreconditionError("token already committed or canceled")
	}
	if actualSize > t.maxSize {
		return wire.NewPreconditionError("commit size exceeds reserved capacity")
	}
	t.reserved = false

	r := t.ring
	totalSize := wire.TotalRecordSize(t.maxSize)
	payload := t.Data()[:actualSize]

	seq := wire.Add64(r.base, hdrCurrentSeqOff, 1)
	ts := monotonicNanos()

	var checksum uint32
	if actualSize > 0 && r.checksumsEnabled {
		checksum = crc32.ChecksumIEEE(payload)
	}

	r.writeRecord(t.start, t.topicID, seq, ts, payload, checksum)

	newPos := wire.AlignUp8((t.start + totalSize) % r.capacity)
	if newPos >= r.capacity {
		newPos = 0
	}
	wire.Store64(r.base, hdrWritePosOff, newPos)
	wire.Store64(r.base, hdrTimestampOff, ts)

	r.notifySubscribers()
	return nil
}

// Cancel abandons the reservation: no sequence is consumed, no notification
// fires, since nothing was written to shared state by BeginMessage.
func (t *Token) Cancel() {
	t.reserved = false
}
