package dds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_BeginMessageCommitRoundTrips(t *testing.T) {
	withScratchDirs(t)
	core := openTestCore(t, "/dds_zerocopy")

	pub, err := core.Publisher("orders://zc", "writer")
	require.NoError(t, err)
	defer pub.Close()

	sub, err := core.Subscriber("orders://zc", "reader")
	require.NoError(t, err)
	defer sub.Close()

	msg, err := pub.BeginMessage(16)
	require.NoError(t, err)
	n := copy(msg.Data(), "zero-copy")
	require.NoError(t, msg.Commit(n))

	data, _, err := sub.Read(false)
	require.NoError(t, err)
	assert.Equal(t, "zero-copy", string(data))
}

func TestPublisher_PublishFillCancelSkipsMessage(t *testing.T) {
	withScratchDirs(t)
	core := openTestCore(t, "/dds_cancel")

	pub, err := core.Publisher("orders://cancelled", "writer")
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.PublishFill(16, func([]byte) int { return 0 }))

	sub, err := core.Subscriber("orders://cancelled", "reader")
	require.NoError(t, err)
	defer sub.Close()

	assert.Zero(t, sub.UnreadCount())
}
