package collector

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamgov/streamgov-backend/internal/kafka"
	"github.com/streamgov/streamgov-backend/internal/models"
)

// fakeAdmin serves a small fixed cluster and counts the calls that reach it.
type fakeAdmin struct {
	describeClusterCalls int
	topics               map[string]kafka.TopicDetail
	sizes                map[string]map[int32]int64
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{
		topics: map[string]kafka.TopicDetail{
			"dev.orders": {
				Name: "dev.orders", Partitions: 2, ReplicationFactor: 2,
				PartitionInfo: []kafka.PartitionInfo{
					{ID: 0, Leader: 1, Replicas: []int32{1, 2}, ISR: []int32{1, 2}},
					{ID: 1, Leader: 2, Replicas: []int32{2, 3}, ISR: []int32{2, 3}},
				},
			},
			"dev.users": {
				Name: "dev.users", Partitions: 1, ReplicationFactor: 2,
				PartitionInfo: []kafka.PartitionInfo{
					{ID: 0, Leader: 1, Replicas: []int32{1, 3}, ISR: []int32{1, 3}},
				},
			},
		},
		sizes: map[string]map[int32]int64{
			"dev.orders": {0: 1024, 1: 2048},
			"dev.users":  {0: 512},
		},
	}
}

func (f *fakeAdmin) ListTopics(context.Context) (map[string]kafka.TopicDetail, error) {
	return f.topics, nil
}
func (f *fakeAdmin) DescribeTopics(_ context.Context, names []string) (map[string]kafka.TopicDetail, error) {
	out := map[string]kafka.TopicDetail{}
	for _, n := range names {
		if d, ok := f.topics[n]; ok {
			out[n] = d
		}
	}
	return out, nil
}
func (f *fakeAdmin) CreateTopics(context.Context, []kafka.NewTopic) map[string]error { return nil }
func (f *fakeAdmin) DeleteTopics(context.Context, []string) map[string]error         { return nil }
func (f *fakeAdmin) AlterTopicConfig(context.Context, string, map[string]*string) error {
	return nil
}
func (f *fakeAdmin) CreatePartitions(context.Context, string, int32) error { return nil }
func (f *fakeAdmin) DescribeCluster(context.Context) (kafka.ClusterInfo, error) {
	f.describeClusterCalls++
	return kafka.ClusterInfo{Brokers: []int32{1, 2, 3}, ControllerID: 1}, nil
}
func (f *fakeAdmin) DescribeLogDirs(context.Context) (map[string]map[int32]int64, error) {
	return f.sizes, nil
}
func (f *fakeAdmin) ConsumerLag(context.Context, string) (map[string]map[int32]int64, error) {
	return map[string]map[int32]int64{"dev.orders": {0: 7}}, nil
}
func (f *fakeAdmin) ListConsumerGroups(context.Context) ([]string, error) {
	return []string{"orders-consumer"}, nil
}
func (f *fakeAdmin) TestConnection(context.Context) models.ConnectionTestResult {
	return models.ConnectionTestResult{Success: true}
}
func (f *fakeAdmin) Close() error { return nil }

type fakeSource struct{ admin *fakeAdmin }

func (s fakeSource) Kafka(context.Context, string) (kafka.Admin, error) { return s.admin, nil }

type fakeSnapshotStore struct {
	saved  []*models.MetricsSnapshot
	cutoff time.Time
}

func (s *fakeSnapshotStore) SaveMetricsSnapshot(_ context.Context, snap *models.MetricsSnapshot) error {
	s.saved = append(s.saved, snap)
	return nil
}
func (s *fakeSnapshotStore) GetLatestMetricsSnapshot(_ context.Context, clusterID string) (*models.MetricsSnapshot, error) {
	for i := len(s.saved) - 1; i >= 0; i-- {
		if s.saved[i].ClusterID == clusterID {
			return s.saved[i], nil
		}
	}
	return nil, nil
}
func (s *fakeSnapshotStore) DeleteMetricsSnapshotsBefore(_ context.Context, _ string, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return 3, nil
}

type fakeEndpoints struct{ ids []string }

func (f fakeEndpoints) ListClusterEndpoints(context.Context, bool) ([]*models.ClusterEndpoint, error) {
	out := make([]*models.ClusterEndpoint, 0, len(f.ids))
	for _, id := range f.ids {
		out = append(out, &models.ClusterEndpoint{ID: id, IsActive: true})
	}
	return out, nil
}

func newTestCollector(t *testing.T, admin *fakeAdmin, store *fakeSnapshotStore, withRedis bool) (*Collector, *miniredis.Miniredis) {
	t.Helper()
	var rdb redis.UniversalClient
	var mr *miniredis.Miniredis
	if withRedis {
		mr = miniredis.RunT(t)
		rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	}
	c := New(fakeSource{admin}, store, fakeEndpoints{ids: []string{"c1"}}, rdb, Options{}, nil)
	return c, mr
}

func TestSnapshotAssembly(t *testing.T) {
	admin := newFakeAdmin()
	c, _ := newTestCollector(t, admin, &fakeSnapshotStore{}, false)

	snap, err := c.GetSnapshot(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, "c1", snap.ClusterID)
	assert.Equal(t, 3, snap.BrokerCount)
	assert.Equal(t, 3, snap.TotalPartitions)
	assert.Equal(t, map[int32]int{1: 2, 2: 1}, snap.LeaderDistribution)
	assert.InDelta(t, 1.0, snap.PartitionBrokerRatio(), 0.001)

	orders := snap.Topics["dev.orders"]
	require.Len(t, orders.Partitions, 2)
	var p0 models.PartitionMeta
	for _, p := range orders.Partitions {
		if p.Index == 0 {
			p0 = p
		}
	}
	assert.EqualValues(t, 1024, p0.SizeBytes)
	assert.EqualValues(t, 7, p0.OffsetLag)

	stats, ok := snap.SizeStats("dev.orders")
	require.True(t, ok)
	assert.EqualValues(t, 1024, stats.MinBytes)
	assert.EqualValues(t, 2048, stats.MaxBytes)
	assert.EqualValues(t, 1536, stats.AvgBytes)
}

func TestMemoryTierServesRepeatReads(t *testing.T) {
	admin := newFakeAdmin()
	c, _ := newTestCollector(t, admin, &fakeSnapshotStore{}, false)

	first, err := c.GetSnapshot(context.Background(), "c1")
	require.NoError(t, err)
	second, err := c.GetSnapshot(context.Background(), "c1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, admin.describeClusterCalls)
}

func TestRedisTierSharesAcrossProcesses(t *testing.T) {
	admin := newFakeAdmin()
	c1, mr := newTestCollector(t, admin, &fakeSnapshotStore{}, true)

	_, err := c1.GetSnapshot(context.Background(), "c1")
	require.NoError(t, err)
	require.True(t, mr.Exists("metrics:cluster:c1:snapshot"))

	// A second worker sharing the redis tier never reaches Kafka.
	coldAdmin := newFakeAdmin()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c2 := New(fakeSource{coldAdmin}, &fakeSnapshotStore{}, fakeEndpoints{}, rdb, Options{}, nil)

	snap, err := c2.GetSnapshot(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.BrokerCount)
	assert.Equal(t, 0, coldAdmin.describeClusterCalls)
}

func TestRedisExpiryFallsThroughToKafka(t *testing.T) {
	admin := newFakeAdmin()
	c, mr := newTestCollector(t, admin, &fakeSnapshotStore{}, true)

	_, err := c.GetSnapshot(context.Background(), "c1")
	require.NoError(t, err)

	mr.FastForward(10 * time.Minute)
	c.l1.Purge()

	_, err = c.GetSnapshot(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, admin.describeClusterCalls)
}

func TestRefreshBypassesCaches(t *testing.T) {
	admin := newFakeAdmin()
	c, _ := newTestCollector(t, admin, &fakeSnapshotStore{}, true)

	_, err := c.GetSnapshot(context.Background(), "c1")
	require.NoError(t, err)
	_, err = c.Refresh(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, 2, admin.describeClusterCalls, "refresh must hit Kafka")
}

func TestCollectPersistsDurably(t *testing.T) {
	admin := newFakeAdmin()
	store := &fakeSnapshotStore{}
	c, _ := newTestCollector(t, admin, store, false)

	snap, err := c.Collect(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, store.saved, 1)
	assert.Equal(t, snap, store.saved[0])

	latest, err := c.History(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, snap, latest)
}

func TestCollectAllVisitsActiveClusters(t *testing.T) {
	admin := newFakeAdmin()
	store := &fakeSnapshotStore{}
	c := New(fakeSource{admin}, store, fakeEndpoints{ids: []string{"c1", "c2"}}, nil, Options{}, nil)

	c.CollectAll(context.Background())
	assert.Len(t, store.saved, 2)
}

func TestCleanupCutoff(t *testing.T) {
	store := &fakeSnapshotStore{}
	c, _ := newTestCollector(t, newFakeAdmin(), store, false)

	deleted, err := c.Cleanup(context.Background(), "c1", 7)
	require.NoError(t, err)
	assert.EqualValues(t, 3, deleted)

	want := time.Now().UTC().AddDate(0, 0, -7)
	assert.WithinDuration(t, want, store.cutoff, time.Minute)
}

func TestUntilNextCleanup(t *testing.T) {
	before := time.Date(2025, 3, 1, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Hour, untilNextCleanup(before))

	after := time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, 23*time.Hour, untilNextCleanup(after))
}
