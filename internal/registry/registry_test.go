package registry

import (
	"fmt"
	"sync"
	"testing"
	"unsafe"

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

func openTestSegment(t *testing.T, name string) *shmseg.Segment {
	t.Helper()
	seg, err := shmseg.Open(name, 8<<20)
	require.NoError(t, err)
	t.Cleanup(func() { seg.Close() })
	return seg
}

func TestAttach_InitializesFreshSegment(t *testing.T) {
	withScratchDirs(t)
	seg := openTestSegment(t, "/reg_fresh")

	r, err := Attach(seg)
	require.NoError(t, err)
	assert.Empty(t, r.All())
}

func TestRegister_IsIdempotentByName(t *testing.T) {
	withScratchDirs(t)
	seg := openTestSegment(t, "/reg_idempotent")
	r, err := Attach(seg)
	require.NoError(t, err)

	t1, err := r.Register("orders://fills", 1<<16)
	require.NoError(t, err)

	t2, err := r.Register("orders://fills", 1<<16)
	require.NoError(t, err)

	assert.Equal(t, t1, t2)
	assert.Len(t, r.All(), 1)
}

func TestRegister_RejectsInvalidName(t *testing.T) {
	withScratchDirs(t)
	seg := openTestSegment(t, "/reg_badname")
	r, err := Attach(seg)
	require.NoError(t, err)

	_, err = r.Register("not-a-valid-name", 1024)
	require.Error(t, err)
}

func TestRegister_EnforcesCapacity(t *testing.T) {
	withScratchDirs(t)
	seg := openTestSegment(t, "/reg_capacity")
	r, err := Attach(seg)
	require.NoError(t, err)

	for i := 0; i < wire.MaxTopics; i++ {
		_, err := r.Register(fmt.Sprintf("topic://%d", i), 1024)
		require.NoError(t, err)
	}

	_, err = r.Register("topic://overflow", 1024)
	require.Error(t, err)
}

func TestRegister_DistinctTopicsGetDistinctOffsets(t *testing.T) {
	withScratchDirs(t)
	seg := openTestSegment(t, "/reg_offsets")
	r, err := Attach(seg)
	require.NoError(t, err)

	a, err := r.Register("a://topic", 4096)
	require.NoError(t, err)
	b, err := r.Register("b://topic", 4096)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.Offset, b.Offset)
	assert.Greater(t, b.Offset, a.Offset)
}

func TestLookupByID_FindsRegisteredTopic(t *testing.T) {
	withScratchDirs(t)
	seg := openTestSegment(t, "/reg_byid")
	r, err := Attach(seg)
	require.NoError(t, err)

	topic, err := r.Register("market://quotes", 2048)
	require.NoError(t, err)

	got, ok := r.LookupByID(topic.ID)
	require.True(t, ok)
	assert.Equal(t, topic, got)
}

func TestLookup_UnknownNameNotFound(t *testing.T) {
	withScratchDirs(t)
	seg := openTestSegment(t, "/reg_unknown")
	r, err := Attach(seg)
	require.NoError(t, err)

	_, ok := r.Lookup("nope://nope")
	assert.False(t, ok)
}

func TestRegister_ConcurrentRegistrationIsSerialized(t *testing.T) {
	withScratchDirs(t)
	seg := openTestSegment(t, "/reg_concurrent")
	r, err := Attach(seg)
	require.NoError(t, err)

	const n = 32
	var wg sync.WaitGroup
	ids := make([]uint32, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			topic, err := r.Register(fmt.Sprintf("concurrent://%d", i), 1024)
			require.NoError(t, err)
			ids[i] = topic.ID
		}(i)
	}
	wg.Wait()

	seen := make(map[uint32]bool, n)
	for _, id := range ids {
		require.False(t, seen[id], "duplicate topic id %d", id)
		seen[id] = true
	}
	assert.Len(t, r.All(), n)
}

func TestAttach_RejectsIncompatibleVersion(t *testing.T) {
	withScratchDirs(t)
	seg := openTestSegment(t, "/reg_version")
	_, err := Attach(seg)
	require.NoError(t, err)

	base := unsafe.Pointer(&seg.Base()[0])
	wire.Store32(base, offsetVersion(), 0xFFFFFFFF)

	_, err = Attach(seg)
	require.Error(t, err)
}
