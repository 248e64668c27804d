package monitor

import (
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mbdds/mbdds/dds"
	"github.com/mbdds/mbdds/internal/shmseg"
)

func withScratchDirs(t *testing.T) {
	t.Helper()
	restore := shmseg.SetDirsForTesting(t.TempDir(), t.TempDir())
	t.Cleanup(restore)
}

func TestSnapshot_ReportsRegisteredTopicAndPublisher(t *testing.T) {
	withScratchDirs(t)

	cfg := dds.DefaultConfig()
	cfg.SegmentName = "/monitor_snapshot"
	cfg.SegmentSize = 2 * datasize.MB
	cfg.DefaultRingSize = 64 * datasize.KB

	core, err := dds.Open(cfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer core.Close()

	pub, err := core.Publisher("metrics://writer", "writer")
	require.NoError(t, err)
	defer pub.Close()

	sub, err := core.Subscriber("metrics://writer", "reader")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, pub.Publish([]byte("sample")))

	m, err := Open(cfg.SegmentName)
	require.NoError(t, err)
	defer m.Close()

	topics := m.Snapshot()
	require.Len(t, topics, 1)

	topic := topics[0]
	assert.Equal(t, "metrics://writer", topic.Name)
	assert.Equal(t, uint64(1), topic.CurrentSequence)
	assert.True(t, topic.Publisher.Valid)
	assert.Equal(t, "writer", topic.Publisher.Name)
	require.Len(t, topic.Subscribers, 1)
	assert.Equal(t, "reader", topic.Subscribers[0].Name)
}

func TestSnapshot_EmptySegmentReturnsNoTopics(t *testing.T) {
	withScratchDirs(t)

	cfg := dds.DefaultConfig()
	cfg.SegmentName = "/monitor_empty"
	cfg.SegmentSize = 2 * datasize.MB

	core, err := dds.Open(cfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer core.Close()

	m, err := Open(cfg.SegmentName)
	require.NoError(t, err)
	defer m.Close()

	assert.Empty(t, m.Snapshot())
}
