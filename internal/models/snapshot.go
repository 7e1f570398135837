package models

import "time"

// PartitionMeta is the per-partition state captured in a snapshot.
type PartitionMeta struct {
	Index     int     `json:"index"`
	SizeBytes int64   `json:"size_bytes"`
	OffsetLag int64   `json:"offset_lag"`
	Leader    int32   `json:"leader"`
	Replicas  []int32 `json:"replicas"`
	ISR       []int32 `json:"isr"`
}

// TopicMeta groups the partitions of one topic.
type TopicMeta struct {
	Partitions []PartitionMeta `json:"partitions"`
}

// MetricsSnapshot is a point-in-time capture of one cluster's state.
// Written by the collector, cached in two tiers, persisted for history.
type MetricsSnapshot struct {
	ClusterID          string               `json:"cluster_id"`
	CapturedAt         time.Time            `json:"captured_at"`
	Topics             map[string]TopicMeta `json:"topics"`
	BrokerCount        int                  `json:"broker_count"`
	TotalPartitions    int                  `json:"total_partitions"`
	LeaderDistribution map[int32]int        `json:"leader_distribution"`
}

// TopicSizeStats is a lazily derived per-topic aggregation.
type TopicSizeStats struct {
	Topic        string `json:"topic"`
	MinBytes     int64  `json:"min_bytes"`
	MaxBytes     int64  `json:"max_bytes"`
	AvgBytes     int64  `json:"avg_bytes"`
	TotalBytes   int64  `json:"total_bytes"`
	PartitionCnt int    `json:"partition_count"`
}

// PartitionBrokerRatio is total partitions per broker; 0 when no brokers.
func (s *MetricsSnapshot) PartitionBrokerRatio() float64 {
	if s.BrokerCount == 0 {
		return 0
	}
	return float64(s.TotalPartitions) / float64(s.BrokerCount)
}

// SizeStats computes min/max/avg partition size for one topic on demand.
func (s *MetricsSnapshot) SizeStats(topic string) (TopicSizeStats, bool) {
	meta, ok := s.Topics[topic]
	if !ok || len(meta.Partitions) == 0 {
		return TopicSizeStats{}, false
	}
	stats := TopicSizeStats{Topic: topic, PartitionCnt: len(meta.Partitions), MinBytes: meta.Partitions[0].SizeBytes}
	for _, p := range meta.Partitions {
		if p.SizeBytes < stats.MinBytes {
			stats.MinBytes = p.SizeBytes
		}
		if p.SizeBytes > stats.MaxBytes {
			stats.MaxBytes = p.SizeBytes
		}
		stats.TotalBytes += p.SizeBytes
	}
	stats.AvgBytes = stats.TotalBytes / int64(stats.PartitionCnt)
	return stats, true
}
