package ring

import (
	"hash/crc32"
	"time"
	"unsafe"

	"github.com/mbdds/mbdds/internal/shmseg"
	"github.com/mbdds/mbdds/internal/wire"
)

// ReadNext reads the message immediately following sub's last consumed
// sequence (spec.md §4.3.5 read_next).
func (r *Ring) ReadNext(sub Subscriber) (Record, error) {
	expected := wire.Load64(sub.slotBase, subLastSeqOff) + 1
	return r.readExpected(sub, expected)
}

// ReadLatest advances sub's cursor to the newest message, dropping any gap
// (spec.md §4.3.5 read_latest).
func (r *Ring) ReadLatest(sub Subscriber) (Record, error) {
	expected := wire.Load64(r.base, hdrCurrentSeqOff)
	return r.readExpected(sub, expected)
}

// UnreadCount reports how many sequence numbers sub has not yet consumed.
func (r *Ring) UnreadCount(sub Subscriber) uint64 {
	current := wire.Load64(r.base, hdrCurrentSeqOff)
	last := wire.Load64(sub.slotBase, subLastSeqOff)
	if current <= last {
		return 0
	}
	return current - last
}

// readExpected implements spec.md §4.3.5's shared scan: starting from the
// subscriber's read_pos, walk forward in 8-byte steps looking for a valid
// record whose sequence equals expectedSeq, bounded to one pass of capacity
// bytes.
func (r *Ring) readExpected(sub Subscriber, expectedSeq uint64) (Record, error) {
	bufferCurrentSeq := wire.Load64(r.base, hdrCurrentSeqOff)
	if expectedSeq == 0 || expectedSeq > bufferCurrentSeq {
		return Record{}, wire.NewDataError("no message available")
	}

	searchPos := wire.Load64(sub.slotBase, subReadPosOff)

	// traveled tracks cumulative bytes crossed, not loop iterations, so the
	// scan covers exactly one pass of capacity bytes regardless of how many
	// records it finds along the way (spec.md §4.3.5).
	for traveled := uint64(0); traveled < r.capacity; {
		hdr, totalSize, ok := r.peekRecordAt(searchPos)
		if !ok {
			searchPos = (searchPos + wire.MessageAlignment) % r.capacity
			traveled += wire.MessageAlignment
			continue
		}
		if hdr.Sequence != expectedSeq {
			searchPos = (searchPos + totalSize) % r.capacity
			traveled += totalSize
			continue
		}
		rec, ok := r.materializeRecord(searchPos, hdr)
		if !ok {
			searchPos = (searchPos + wire.MessageAlignment) % r.capacity
			traveled += wire.MessageAlignment
			continue
		}
		wire.Store64(sub.slotBase, subReadPosOff, searchPos)
		wire.Store64(sub.slotBase, subLastSeqOff, rec.Sequence)
		wire.Store64(sub.slotBase, subTimestampOff, rec.Timestamp)
		return rec, nil
	}

	return Record{}, wire.NewDataError("no message found for expected sequence")
}

// peekRecordAt validates the record header at pos and reports its sequence
// number and total on-disk size, per spec.md §4.3.4, without touching the
// payload: readExpected's scan compares the returned Sequence against what
// it's looking for before paying for a CRC check and a copy, since most
// positions a scan crosses belong to records that aren't the one it wants.
// Bounds are checked defensively beyond what the original validated, since
// Go panics on an out-of-range slice rather than reading adjacent garbage
// memory the way the C++ source tolerated — spec.md §9's "memory safety
// across the shared boundary" note requires treating every field from
// shared memory as untrusted before it is dereferenced.
func (r *Ring) peekRecordAt(pos uint64) (Record, uint64, bool) {
	if pos >= r.capacity || pos+wire.RecordHeaderSize > r.capacity {
		return Record{}, 0, false
	}

	recBase := unsafe.Pointer(uintptr(r.dataBase) + uintptr(pos))
	if wire.Load32(recBase, recMagicOff) != wire.RecordMagic {
		return Record{}, 0, false
	}

	dataSize := wire.Load32(recBase, recDataSizeOff)
	if uint64(dataSize) > r.capacity {
		return Record{}, 0, false
	}
	totalSize := wire.TotalRecordSize(dataSize)
	if pos+totalSize > r.capacity {
		return Record{}, 0, false
	}

	return Record{
		TopicID:   wire.Load32(recBase, recTopicIDOff),
		Sequence:  wire.Load64(recBase, recSequenceOff),
		Timestamp: wire.Load64(recBase, recTimestampOff),
	}, totalSize, true
}

// materializeRecord finishes validating the record peekRecordAt already
// found at pos, checking its CRC (if enabled) and copying its payload out
// of shared memory. hdr carries the header fields peekRecordAt already
// read, reused here instead of re-reading them.
func (r *Ring) materializeRecord(pos uint64, hdr Record) (Record, bool) {
	recBase := unsafe.Pointer(uintptr(r.dataBase) + uintptr(pos))
	dataSize := wire.Load32(recBase, recDataSizeOff)

	var payload []byte
	if dataSize > 0 {
		raw := r.data[pos+wire.RecordHeaderSize : pos+wire.RecordHeaderSize+uint64(dataSize)]
		if r.checksumsEnabled {
			checksum := wire.Load32(recBase, recChecksumOff)
			if crc32.ChecksumIEEE(raw) != checksum {
				return Record{}, false
			}
		}
		payload = append([]byte(nil), raw...)
	}

	hdr.Data = payload
	return hdr, true
}

// WaitForMessage blocks until sub has at least one unread message or
// timeout elapses (0 blocks indefinitely), per spec.md §4.3.5
// wait_for_message: snapshot the notification word, check the sequence
// condition once, and if it isn't already satisfied make exactly one
// futex-wait call on the snapshot. It does not loop internally on a wake —
// same as the original's single futex_wait call returning ret == 0 — so a
// caller's own outer loop (dds.Subscriber.workerLoop) is what re-checks
// after a wake, whether that wake came from a publish or from a
// subscriber's cooperative-cancellation broadcast (WakeWaiters).
func (r *Ring) WaitForMessage(sub Subscriber, timeout time.Duration) (bool, error) {
	snapshot := wire.Load32(r.base, hdrNotifyCountOff)

	expected := wire.Load64(sub.slotBase, subLastSeqOff) + 1
	current := wire.Load64(r.base, hdrCurrentSeqOff)
	if current >= expected {
		return true, nil
	}

	notifyPtr := wire.Ptr32(r.base, hdrNotifyCountOff)

	err := shmseg.FutexWait(notifyPtr, snapshot, timeout)
	if shmseg.ErrTimedOut(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
