// Package collector assembles per-cluster metrics snapshots and serves them
// through a three-tier cache: process-local LRU, shared redis, durable store.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/streamgov/streamgov-backend/internal/apperr"
	"github.com/streamgov/streamgov-backend/internal/kafka"
	"github.com/streamgov/streamgov-backend/internal/models"
	"github.com/streamgov/streamgov-backend/internal/pkg/metrics"
	"github.com/streamgov/streamgov-backend/internal/repository"
)

const (
	defaultMemoryTTL = 15 * time.Second
	defaultRedisTTL  = 5 * time.Minute
	// DefaultRetentionDays is how long durable snapshots are kept.
	DefaultRetentionDays = 7

	l1Size = 128
)

// AdminSource hands out Kafka admin clients by cluster id. The connection
// manager implements it.
type AdminSource interface {
	Kafka(ctx context.Context, clusterID string) (kafka.Admin, error)
}

// EndpointLister enumerates the clusters the periodic jobs visit. The
// endpoint store implements it.
type EndpointLister interface {
	ListClusterEndpoints(ctx context.Context, activeOnly bool) ([]*models.ClusterEndpoint, error)
}

// Options tune the cache tiers; zero values use defaults.
type Options struct {
	MemoryTTL time.Duration
	RedisTTL  time.Duration
}

// Collector builds and caches MetricsSnapshots.
type Collector struct {
	admins    AdminSource
	store     repository.SnapshotStore
	endpoints EndpointLister
	rdb       redis.UniversalClient // nil disables the shared tier

	l1       *expirable.LRU[string, *models.MetricsSnapshot]
	redisTTL time.Duration
	logger   *slog.Logger
}

// New creates a Collector. rdb may be nil when no shared cache is configured.
func New(admins AdminSource, store repository.SnapshotStore, endpoints EndpointLister, rdb redis.UniversalClient, opts Options, logger *slog.Logger) *Collector {
	if opts.MemoryTTL <= 0 {
		opts.MemoryTTL = defaultMemoryTTL
	}
	if opts.RedisTTL <= 0 {
		opts.RedisTTL = defaultRedisTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		admins:    admins,
		store:     store,
		endpoints: endpoints,
		rdb:       rdb,
		l1:        expirable.NewLRU[string, *models.MetricsSnapshot](l1Size, nil, opts.MemoryTTL),
		redisTTL:  opts.RedisTTL,
		logger:    logger,
	}
}

func redisKey(clusterID string) string {
	return "metrics:cluster:" + clusterID + ":snapshot"
}

// GetSnapshot serves the freshest cached snapshot, assembling from Kafka only
// when both cache tiers miss.
func (c *Collector) GetSnapshot(ctx context.Context, clusterID string) (*models.MetricsSnapshot, error) {
	if snap, ok := c.l1.Get(clusterID); ok {
		metrics.SnapshotCacheRequestsTotal.WithLabelValues("memory", "hit").Inc()
		return snap, nil
	}
	metrics.SnapshotCacheRequestsTotal.WithLabelValues("memory", "miss").Inc()

	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, redisKey(clusterID)).Bytes()
		switch {
		case err == nil:
			var snap models.MetricsSnapshot
			if err := json.Unmarshal(data, &snap); err == nil {
				metrics.SnapshotCacheRequestsTotal.WithLabelValues("redis", "hit").Inc()
				c.l1.Add(clusterID, &snap)
				return &snap, nil
			}
			c.logger.Warn("cached snapshot is corrupt, rebuilding", "cluster_id", clusterID, "error", err)
		case errors.Is(err, redis.Nil):
			// cache miss
		default:
			c.logger.Warn("shared snapshot cache unavailable", "cluster_id", clusterID, "error", err)
		}
		metrics.SnapshotCacheRequestsTotal.WithLabelValues("redis", "miss").Inc()
	}

	snap, err := c.assemble(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	c.fillCaches(ctx, snap)
	return snap, nil
}

// Refresh bypasses both cache tiers and rewrites them.
func (c *Collector) Refresh(ctx context.Context, clusterID string) (*models.MetricsSnapshot, error) {
	snap, err := c.assemble(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	c.fillCaches(ctx, snap)
	return snap, nil
}

// Collect builds a snapshot and persists it durably. Idempotent: running it
// twice writes two rows keyed by capture time, never corrupts state.
func (c *Collector) Collect(ctx context.Context, clusterID string) (*models.MetricsSnapshot, error) {
	snap, err := c.assemble(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	if err := c.store.SaveMetricsSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	c.fillCaches(ctx, snap)
	return snap, nil
}

// CollectAll runs Collect for every active cluster endpoint. Per-cluster
// failures are logged, not propagated, so one dead cluster never starves the
// others.
func (c *Collector) CollectAll(ctx context.Context) {
	endpoints, err := c.endpoints.ListClusterEndpoints(ctx, true)
	if err != nil {
		c.logger.Error("listing cluster endpoints for collection failed", "error", err)
		return
	}
	for _, e := range endpoints {
		if ctx.Err() != nil {
			return
		}
		if _, err := c.Collect(ctx, e.ID); err != nil {
			c.logger.Error("snapshot collection failed", "cluster_id", e.ID, "error", err)
		}
	}
}

// Cleanup deletes durable snapshots older than the retention window.
func (c *Collector) Cleanup(ctx context.Context, clusterID string, days int) (int64, error) {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	return c.store.DeleteMetricsSnapshotsBefore(ctx, clusterID, cutoff)
}

// CleanupAll runs Cleanup for every active cluster endpoint.
func (c *Collector) CleanupAll(ctx context.Context, days int) {
	endpoints, err := c.endpoints.ListClusterEndpoints(ctx, true)
	if err != nil {
		c.logger.Error("listing cluster endpoints for cleanup failed", "error", err)
		return
	}
	for _, e := range endpoints {
		deleted, err := c.Cleanup(ctx, e.ID, days)
		if err != nil {
			c.logger.Error("snapshot cleanup failed", "cluster_id", e.ID, "error", err)
			continue
		}
		if deleted > 0 {
			c.logger.Info("expired snapshots deleted", "cluster_id", e.ID, "deleted", deleted)
		}
	}
}

// History returns the latest durable snapshot, for clusters that are
// currently unreachable.
func (c *Collector) History(ctx context.Context, clusterID string) (*models.MetricsSnapshot, error) {
	return c.store.GetLatestMetricsSnapshot(ctx, clusterID)
}

func (c *Collector) fillCaches(ctx context.Context, snap *models.MetricsSnapshot) {
	c.l1.Add(snap.ClusterID, snap)
	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, redisKey(snap.ClusterID), data, c.redisTTL).Err(); err != nil {
		c.logger.Warn("shared snapshot cache write failed", "cluster_id", snap.ClusterID, "error", err)
	}
}

// assemble captures one cluster in four admin round-trips: brokers, topic
// names, per-partition layout, and on-disk sizes, then joins them.
func (c *Collector) assemble(ctx context.Context, clusterID string) (*models.MetricsSnapshot, error) {
	admin, err := c.admins.Kafka(ctx, clusterID)
	if err != nil {
		return nil, err
	}

	info, err := admin.DescribeCluster(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, err, "describe cluster %s", clusterID)
	}
	listed, err := admin.ListTopics(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, err, "list topics of %s", clusterID)
	}
	names := make([]string, 0, len(listed))
	for name := range listed {
		names = append(names, name)
	}
	details, err := admin.DescribeTopics(ctx, names)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, err, "describe topics of %s", clusterID)
	}
	sizes, err := admin.DescribeLogDirs(ctx)
	if err != nil {
		// Log-dir description needs broker-level permissions some clusters
		// withhold; sizes degrade to zero rather than failing the snapshot.
		c.logger.Warn("log dir sizes unavailable", "cluster_id", clusterID, "error", err)
		sizes = map[string]map[int32]int64{}
	}
	lags := c.collectLags(ctx, admin, clusterID)

	snap := &models.MetricsSnapshot{
		ClusterID:          clusterID,
		CapturedAt:         time.Now().UTC(),
		Topics:             make(map[string]models.TopicMeta, len(details)),
		BrokerCount:        len(info.Brokers),
		LeaderDistribution: map[int32]int{},
	}
	for name, detail := range details {
		meta := models.TopicMeta{Partitions: make([]models.PartitionMeta, 0, len(detail.PartitionInfo))}
		for _, p := range detail.PartitionInfo {
			pm := models.PartitionMeta{
				Index:    int(p.ID),
				Leader:   p.Leader,
				Replicas: p.Replicas,
				ISR:      p.ISR,
			}
			if topicSizes, ok := sizes[name]; ok {
				pm.SizeBytes = topicSizes[p.ID]
			}
			if topicLags, ok := lags[name]; ok {
				pm.OffsetLag = topicLags[p.ID]
			}
			meta.Partitions = append(meta.Partitions, pm)
			snap.LeaderDistribution[p.Leader]++
		}
		snap.Topics[name] = meta
		snap.TotalPartitions += len(detail.PartitionInfo)
	}
	return snap, nil
}

// collectLags merges committed-offset lag across every consumer group,
// keeping the worst lag per partition. Failures degrade to zero lag.
func (c *Collector) collectLags(ctx context.Context, admin kafka.Admin, clusterID string) map[string]map[int32]int64 {
	out := map[string]map[int32]int64{}
	groups, err := admin.ListConsumerGroups(ctx)
	if err != nil {
		c.logger.Warn("consumer groups unavailable", "cluster_id", clusterID, "error", err)
		return out
	}
	for _, group := range groups {
		lag, err := admin.ConsumerLag(ctx, group)
		if err != nil {
			c.logger.Warn("consumer lag unavailable", "cluster_id", clusterID, "group", group, "error", err)
			continue
		}
		for topic, partitions := range lag {
			if out[topic] == nil {
				out[topic] = map[int32]int64{}
			}
			for partition, value := range partitions {
				if value > out[topic][partition] {
					out[topic][partition] = value
				}
			}
		}
	}
	return out
}
