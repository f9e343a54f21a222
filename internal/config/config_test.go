package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("CLUSTER_NODE_NAME", "node-a")

	c, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", c.DB.Driver)
	assert.Equal(t, 10, c.Queue.BatchSize)
	assert.Equal(t, 5, c.Queue.MaxRestarts)
	assert.Equal(t, time.Second, c.Queue.RestartDelay)
	assert.True(t, c.Toggles.Indexing)
	assert.True(t, c.Toggles.TaskCreation)
	assert.True(t, c.Toggles.Search)
	assert.False(t, c.Cluster.SharedStorage)
	assert.Equal(t, "node-a", c.Cluster.NodeName)
}

func TestParse_ClusterAndIndexer(t *testing.T) {
	t.Setenv("CLUSTER_NODE_NAME", "node-b")
	t.Setenv("CLUSTER_NODES", "node-a,node-b,node-c")
	t.Setenv("CLUSTER_SHARED_STORAGE", "true")
	t.Setenv("INDEXER_ENDPOINTS", "page=http://pages/index,user=http://users/index")
	t.Setenv("INDEXER_OWNED_INDEXES", "3,9")
	t.Setenv("SEARCH_ENABLED", "false")

	c, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, []string{"node-a", "node-b", "node-c"}, c.Cluster.Nodes)
	assert.True(t, c.Cluster.SharedStorage)
	assert.Equal(t, "http://pages/index", c.Indexer.Endpoints["page"])
	assert.Equal(t, []int64{3, 9}, c.Indexer.OwnedIndexes)
	assert.False(t, c.Toggles.Search)
}

func TestParse_RejectsBadBatchSize(t *testing.T) {
	t.Setenv("CLUSTER_NODE_NAME", "node-a")
	t.Setenv("QUEUE_BATCH_SIZE", "0")

	_, err := Parse()
	require.Error(t, err)
}

func TestParse_RejectsNodeMissingFromPartitionedCluster(t *testing.T) {
	t.Setenv("CLUSTER_NODE_NAME", "host-1")
	t.Setenv("CLUSTER_NODES", "node-a,node-b")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host-1")
}

func TestValidate_Cluster(t *testing.T) {
	c := &Config{Queue: Queue{BatchSize: 10}}
	c.Cluster = Cluster{NodeName: "host-1", Nodes: []string{"node-a", "node-b"}}
	assert.Error(t, c.Validate())

	c.Cluster.NodeName = "node-b"
	assert.NoError(t, c.Validate())

	// shared storage drains every row, membership does not matter
	c.Cluster = Cluster{NodeName: "host-1", Nodes: []string{"node-a", "node-b"}, SharedStorage: true}
	assert.NoError(t, c.Validate())

	c.Cluster = Cluster{NodeName: "host-1", Nodes: []string{"node-a"}}
	assert.NoError(t, c.Validate())
}
