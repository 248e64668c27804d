package ring

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbdds/mbdds/internal/shmseg"
	"github.com/mbdds/mbdds/internal/wire"
)

func withScratchDirs(t *testing.T) {
	t.Helper()
	restore := shmseg.SetDirsForTesting(t.TempDir(), t.TempDir())
	t.Cleanup(restore)
}

// newTestRing allocates a real shared-memory segment (so the subscriber
// semaphore is a genuine shmseg.Sem) and carves an arena out of it, exactly
// the way internal/registry hands a topic's byte range to internal/ring.
func newTestRing(t *testing.T, name string, arenaSize uint64) (*Ring, *shmseg.Segment) {
	t.Helper()
	segSize := arenaSize + 4096
	seg, err := shmseg.Open(name, segSize)
	require.NoError(t, err)
	t.Cleanup(func() { seg.Close() })

	arena := seg.Base()[4096 : 4096+arenaSize]
	r, err := Attach(arena, seg.Sem(), DefaultOptions())
	require.NoError(t, err)
	return r, seg
}

func TestAttach_InitializesFreshArena(t *testing.T) {
	withScratchDirs(t)
	r, _ := newTestRing(t, "/ring_fresh", 1<<16)

	assert.True(t, r.Empty())
	assert.Equal(t, uint64(1<<16)-wire.RingDataOffset, r.Capacity())
}

func TestPublishAndReadNext_RoundTrips(t *testing.T) {
	withScratchDirs(t)
	r, _ := newTestRing(t, "/ring_roundtrip", 1<<16)

	sub, err := r.RegisterSubscriber(1, "sub-a")
	require.NoError(t, err)

	require.NoError(t, r.Publish(7, []byte("hello")))
	require.NoError(t, r.Publish(7, []byte("world")))

	rec, err := r.ReadNext(sub)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.Sequence)
	assert.Equal(t, []byte("hello"), rec.Data)
	assert.Equal(t, uint32(7), rec.TopicID)

	rec, err = r.ReadNext(sub)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rec.Sequence)
	assert.Equal(t, []byte("world"), rec.Data)

	_, err = r.ReadNext(sub)
	require.Error(t, err)
}

func TestReadLatest_DropsGapToNewestMessage(t *testing.T) {
	withScratchDirs(t)
	r, _ := newTestRing(t, "/ring_latest", 1<<16)
	sub, err := r.RegisterSubscriber(2, "sub-b")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Publish(1, []byte(fmt.Sprintf("msg-%d", i))))
	}

	rec, err := r.ReadLatest(sub)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), rec.Sequence)
	assert.Equal(t, []byte("msg-4"), rec.Data)
}

func TestPublish_EmptyPayloadIsValid(t *testing.T) {
	withScratchDirs(t)
	r, _ := newTestRing(t, "/ring_empty_payload", 1<<16)
	sub, err := r.RegisterSubscriber(1, "sub")
	require.NoError(t, err)

	require.NoError(t, r.Publish(1, nil))

	rec, err := r.ReadNext(sub)
	require.NoError(t, err)
	assert.Empty(t, rec.Data)
	assert.Equal(t, uint64(1), rec.Sequence)
}

func TestPublish_RejectsOversizedMessage(t *testing.T) {
	withScratchDirs(t)
	r, _ := newTestRing(t, "/ring_oversized", wire.RingDataOffset+256)

	err := r.Publish(1, make([]byte, 1024))
	require.Error(t, err)
}

func TestPublish_OverwritesOnWrapAndSubscriberResyncs(t *testing.T) {
	withScratchDirs(t)
	// Small arena: a handful of messages will wrap the data region.
	r, _ := newTestRing(t, "/ring_wrap", wire.RingDataOffset+512)
	sub, err := r.RegisterSubscriber(1, "lagging-sub")
	require.NoError(t, err)

	// Publish enough 80-byte records (32-byte header + 48-byte payload) to
	// wrap the 512-byte data region
	// several times over without this subscriber ever reading.
	payload := make([]byte, 48)
	for i := 0; i < 40; i++ {
		require.NoError(t, r.Publish(1, payload))
	}

	// The subscriber's cursor now points at long-overwritten data; it must
	// fail validation rather than return garbage, and a read_latest resync
	// must succeed and land on the newest sequence.
	_, err = r.ReadNext(sub)
	require.Error(t, err)

	rec, err := r.ReadLatest(sub)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), rec.Sequence)
}

func TestSequence_IsStrictlyMonotonic(t *testing.T) {
	withScratchDirs(t)
	r, _ := newTestRing(t, "/ring_monotonic", 1<<16)

	var last uint64
	for i := 0; i < 20; i++ {
		require.NoError(t, r.Publish(1, []byte("x")))
		seq := r.Stats().CurrentSequence
		assert.Greater(t, seq, last)
		last = seq
	}
}

func TestBeginMessage_CommitPublishesRecord(t *testing.T) {
	withScratchDirs(t)
	r, _ := newTestRing(t, "/ring_zero_copy", 1<<16)
	sub, err := r.RegisterSubscriber(1, "sub")
	require.NoError(t, err)

	tok, err := r.BeginMessage(3, 32)
	require.NoError(t, err)
	n := copy(tok.Data(), "zero-copy-payload")
	require.NoError(t, tok.Commit(uint32(n)))

	rec, err := r.ReadNext(sub)
	require.NoError(t, err)
	assert.Equal(t, []byte("zero-copy-payload"), rec.Data)
	assert.Equal(t, uint32(3), rec.TopicID)
}

func TestBeginMessage_CancelConsumesNoSequence(t *testing.T) {
	withScratchDirs(t)
	r, _ := newTestRing(t, "/ring_cancel", 1<<16)

	tok, err := r.BeginMessage(1, 32)
	require.NoError(t, err)
	copy(tok.Data(), "never-committed")
	tok.Cancel()

	assert.True(t, r.Empty())
	assert.Equal(t, uint64(0), r.Stats().CurrentSequence)

	err = tok.Commit(4)
	require.Error(t, err)
}

func TestRegisterSubscriber_IsIdempotentByID(t *testing.T) {
	withScratchDirs(t)
	r, _ := newTestRing(t, "/ring_sub_idempotent", 1<<16)

	s1, err := r.RegisterSubscriber(42, "alice")
	require.NoError(t, err)
	s2, err := r.RegisterSubscriber(42, "alice")
	require.NoError(t, err)
	assert.Equal(t, s1.ID(), s2.ID())
	assert.Equal(t, uint32(1), r.Stats().ActiveSubscribers)
}

func TestRegisterSubscriber_SameNameDifferentIDOverrides(t *testing.T) {
	withScratchDirs(t)
	r, _ := newTestRing(t, "/ring_sub_override", 1<<16)

	_, err := r.RegisterSubscriber(1, "bob")
	require.NoError(t, err)
	s2, err := r.RegisterSubscriber(2, "bob")
	require.NoError(t, err)

	assert.Equal(t, uint64(2), s2.ID())
	assert.Equal(t, uint32(1), r.Stats().ActiveSubscribers)
}

func TestRegisterSubscriber_EnforcesCapacity(t *testing.T) {
	withScratchDirs(t)
	r, _ := newTestRing(t, "/ring_sub_capacity", 1<<16)

	for i := 0; i < wire.MaxSubscribers; i++ {
		_, err := r.RegisterSubscriber(uint64(i+1), fmt.Sprintf("sub-%d", i))
		require.NoError(t, err)
	}

	_, err := r.RegisterSubscriber(9999, "overflow")
	require.Error(t, err)
}

func TestUnregisterSubscriber_FreesSlot(t *testing.T) {
	withScratchDirs(t)
	r, _ := newTestRing(t, "/ring_unregister", 1<<16)

	sub, err := r.RegisterSubscriber(1, "sub")
	require.NoError(t, err)
	require.NoError(t, r.UnregisterSubscriber(sub))

	s2, err := r.RegisterSubscriber(2, "sub2")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s2.ID())
}

func TestSetPublisher_RejectsSecondDistinctPublisher(t *testing.T) {
	withScratchDirs(t)
	r, _ := newTestRing(t, "/ring_pub_conflict", 1<<16)

	require.NoError(t, r.SetPublisher(100, "writer-a"))
	err := r.SetPublisher(200, "writer-b")
	require.Error(t, err)
}

func TestSetPublisher_AllowsReattachBySameName(t *testing.T) {
	withScratchDirs(t)
	r, _ := newTestRing(t, "/ring_pub_reattach", 1<<16)

	require.NoError(t, r.SetPublisher(100, "writer-a"))
	require.NoError(t, r.SetPublisher(101, "writer-a"))
}

func TestRemovePublisher_AllowsNewDistinctPublisher(t *testing.T) {
	withScratchDirs(t)
	r, _ := newTestRing(t, "/ring_pub_remove", 1<<16)

	require.NoError(t, r.SetPublisher(100, "writer-a"))
	require.NoError(t, r.RemovePublisher())
	require.NoError(t, r.SetPublisher(200, "writer-b"))
}

func TestWaitForMessage_ReturnsImmediatelyIfUnread(t *testing.T) {
	withScratchDirs(t)
	r, _ := newTestRing(t, "/ring_wait_immediate", 1<<16)
	sub, err := r.RegisterSubscriber(1, "sub")
	require.NoError(t, err)

	require.NoError(t, r.Publish(1, []byte("x")))

	woke, err := r.WaitForMessage(sub, 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, woke)
}

func TestWaitForMessage_TimesOutWithNoPublish(t *testing.T) {
	withScratchDirs(t)
	r, _ := newTestRing(t, "/ring_wait_timeout", 1<<16)
	sub, err := r.RegisterSubscriber(1, "sub")
	require.NoError(t, err)

	woke, err := r.WaitForMessage(sub, 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, woke)
}

func TestWaitForMessage_WakesOnConcurrentPublish(t *testing.T) {
	withScratchDirs(t)
	r, _ := newTestRing(t, "/ring_wait_wake", 1<<16)
	sub, err := r.RegisterSubscriber(1, "sub")
	require.NoError(t, err)

	done := make(chan bool, 1)
	go func() {
		woke, _ := r.WaitForMessage(sub, 2*time.Second)
		done <- woke
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.Publish(1, []byte("wake-up")))

	select {
	case woke := <-done:
		assert.True(t, woke)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForMessage never returned after publish")
	}
}

func TestStats_ReportsSequenceAndSubscribers(t *testing.T) {
	withScratchDirs(t)
	r, _ := newTestRing(t, "/ring_stats", 1<<16)

	_, err := r.RegisterSubscriber(1, "alice")
	require.NoError(t, err)
	_, err = r.RegisterSubscriber(2, "bob")
	require.NoError(t, err)
	require.NoError(t, r.Publish(1, []byte("hi")))
	require.NoError(t, r.Publish(1, []byte("there")))

	stats := r.Stats()
	assert.Equal(t, uint64(2), stats.CurrentSequence)
	assert.Equal(t, uint32(2), stats.ActiveSubscribers)
	assert.Len(t, stats.Subscribers, 2)
}

func TestChecksumDisabled_SkipsValidationOfPayloadCorruption(t *testing.T) {
	withScratchDirs(t)
	segSize := uint64(1<<16) + 4096
	seg, err := shmseg.Open("/ring_checksum_disabled", segSize)
	require.NoError(t, err)
	t.Cleanup(func() { seg.Close() })

	arena := seg.Base()[4096 : 4096+(1<<16)]
	r, err := Attach(arena, seg.Sem(), Options{ChecksumsEnabled: false})
	require.NoError(t, err)

	sub, err := r.RegisterSubscriber(1, "sub")
	require.NoError(t, err)
	require.NoError(t, r.Publish(1, []byte("payload")))

	// Corrupt the first payload byte of the record at offset 0; with
	// checksums off the read still returns the (corrupted) bytes.
	r.data[wire.RecordHeaderSize] = 'P'

	rec, err := r.ReadNext(sub)
	require.NoError(t, err)
	assert.Equal(t, []byte("Payload"), rec.Data)
}
