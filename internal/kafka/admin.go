package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/streamgov/streamgov-backend/internal/pkg/metrics"
)

// IsTopicAlreadyExists reports whether the broker refused a create because
// the topic name is taken.
func IsTopicAlreadyExists(err error) bool {
	return errors.Is(err, sarama.ErrTopicAlreadyExists)
}

// IsUnknownTopic reports whether the broker does not know the topic.
func IsUnknownTopic(err error) bool {
	return errors.Is(err, sarama.ErrUnknownTopicOrPartition)
}

// do wraps one admin call with rate limiting, retries, circuit breaking, and
// the per-operation request counter.
func (c *Client) do(ctx context.Context, operation string, fn func() error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	err := c.breaker.Execute(ctx, func() error {
		return doWithRetry(ctx, defaultRetryAttempts, fn)
	})
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.KafkaAdminRequestsTotal.WithLabelValues(operation, outcome).Inc()
	return err
}

// ListTopics returns every topic with its partition count, replication
// factor, and non-default config.
func (c *Client) ListTopics(ctx context.Context) (map[string]TopicDetail, error) {
	var raw map[string]sarama.TopicDetail
	err := c.do(ctx, "list_topics", func() error {
		var err error
		raw, err = c.admin.ListTopics()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}

	out := make(map[string]TopicDetail, len(raw))
	for name, d := range raw {
		detail := TopicDetail{
			Name:              name,
			Partitions:        int(d.NumPartitions),
			ReplicationFactor: int(d.ReplicationFactor),
			Config:            make(map[string]string, len(d.ConfigEntries)),
		}
		for k, v := range d.ConfigEntries {
			if v != nil {
				detail.Config[k] = *v
			}
		}
		out[name] = detail
	}
	return out, nil
}

// DescribeTopics returns detail for the named topics. Unknown topics are
// absent from the result, not errors; the planner treats absence as CREATE.
func (c *Client) DescribeTopics(ctx context.Context, names []string) (map[string]TopicDetail, error) {
	if len(names) == 0 {
		return map[string]TopicDetail{}, nil
	}

	var meta []*sarama.TopicMetadata
	err := c.do(ctx, "describe_topics", func() error {
		var err error
		meta, err = c.admin.DescribeTopics(names)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("describe topics: %w", err)
	}

	out := make(map[string]TopicDetail, len(meta))
	for _, m := range meta {
		if m.Err == sarama.ErrUnknownTopicOrPartition {
			continue
		}
		if m.Err != sarama.ErrNoError {
			return nil, fmt.Errorf("describe topic %s: %w", m.Name, m.Err)
		}
		detail := TopicDetail{Name: m.Name, Partitions: len(m.Partitions)}
		for _, p := range m.Partitions {
			if len(p.Replicas) > detail.ReplicationFactor {
				detail.ReplicationFactor = len(p.Replicas)
			}
			detail.PartitionInfo = append(detail.PartitionInfo, PartitionInfo{
				ID:       p.ID,
				Leader:   p.Leader,
				Replicas: p.Replicas,
				ISR:      p.Isr,
			})
		}

		config, err := c.describeConfig(ctx, m.Name)
		if err != nil {
			return nil, err
		}
		detail.Config = config
		out[m.Name] = detail
	}
	return out, nil
}

func (c *Client) describeConfig(ctx context.Context, topic string) (map[string]string, error) {
	var entries []sarama.ConfigEntry
	err := c.do(ctx, "describe_config", func() error {
		var err error
		entries, err = c.admin.DescribeConfig(sarama.ConfigResource{
			Type: sarama.TopicResource,
			Name: topic,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("describe config for %s: %w", topic, err)
	}

	config := make(map[string]string, len(entries))
	for _, e := range entries {
		// Broker defaults are noise for diffing; only explicit overrides count.
		if e.Default || e.Source == sarama.SourceDefault || e.Source == sarama.SourceStaticBroker {
			continue
		}
		config[e.Name] = e.Value
	}
	return config, nil
}

// CreateTopics creates each topic independently and reports per-item
// failures keyed by topic name.
func (c *Client) CreateTopics(ctx context.Context, topics []NewTopic) map[string]error {
	failures := make(map[string]error)
	for _, t := range topics {
		detail := &sarama.TopicDetail{
			NumPartitions:     t.Partitions,
			ReplicationFactor: t.ReplicationFactor,
			ConfigEntries:     t.Config,
		}
		name := t.Name
		err := c.do(ctx, "create_topic", func() error {
			return c.admin.CreateTopic(name, detail, false)
		})
		if err != nil {
			failures[name] = err
		}
	}
	return failures
}

// DeleteTopics deletes each topic independently and reports per-item
// failures keyed by topic name. Deleting an unknown topic fails.
func (c *Client) DeleteTopics(ctx context.Context, names []string) map[string]error {
	failures := make(map[string]error)
	for _, name := range names {
		name := name
		err := c.do(ctx, "delete_topic", func() error {
			return c.admin.DeleteTopic(name)
		})
		if err != nil {
			failures[name] = err
		}
	}
	return failures
}

// AlterTopicConfig applies config overrides to one topic. A nil entry value
// resets the key to the broker default.
func (c *Client) AlterTopicConfig(ctx context.Context, name string, entries map[string]*string) error {
	err := c.do(ctx, "alter_config", func() error {
		return c.admin.AlterConfig(sarama.TopicResource, name, entries, false)
	})
	if err != nil {
		return fmt.Errorf("alter config for %s: %w", name, err)
	}
	return nil
}

// CreatePartitions grows a topic to the given partition count. Kafka cannot
// shrink partitions; callers validate direction before calling.
func (c *Client) CreatePartitions(ctx context.Context, name string, count int32) error {
	err := c.do(ctx, "create_partitions", func() error {
		return c.admin.CreatePartitions(name, count, nil, false)
	})
	if err != nil {
		return fmt.Errorf("create partitions for %s: %w", name, err)
	}
	return nil
}

// DescribeCluster returns broker ids and the controller.
func (c *Client) DescribeCluster(ctx context.Context) (ClusterInfo, error) {
	var info ClusterInfo
	err := c.do(ctx, "describe_cluster", func() error {
		brokers, controllerID, err := c.admin.DescribeCluster()
		if err != nil {
			return err
		}
		info = ClusterInfo{ControllerID: controllerID}
		for _, b := range brokers {
			info.Brokers = append(info.Brokers, b.ID())
		}
		return nil
	})
	if err != nil {
		return ClusterInfo{}, fmt.Errorf("describe cluster: %w", err)
	}
	return info, nil
}

// DescribeLogDirs returns on-disk sizes per topic partition, taking the
// largest replica when a partition lives on several brokers.
func (c *Client) DescribeLogDirs(ctx context.Context) (map[string]map[int32]int64, error) {
	info, err := c.DescribeCluster(ctx)
	if err != nil {
		return nil, err
	}

	var dirs map[int32][]sarama.DescribeLogDirsResponseDirMetadata
	err = c.do(ctx, "describe_log_dirs", func() error {
		var err error
		dirs, err = c.admin.DescribeLogDirs(info.Brokers)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("describe log dirs: %w", err)
	}

	sizes := make(map[string]map[int32]int64)
	for _, brokerDirs := range dirs {
		for _, dir := range brokerDirs {
			for _, topic := range dir.Topics {
				partitions := sizes[topic.Topic]
				if partitions == nil {
					partitions = make(map[int32]int64)
					sizes[topic.Topic] = partitions
				}
				for _, p := range topic.Partitions {
					if p.Size > partitions[p.PartitionID] {
						partitions[p.PartitionID] = p.Size
					}
				}
			}
		}
	}
	return sizes, nil
}

// ListConsumerGroups returns the group ids known to the cluster.
func (c *Client) ListConsumerGroups(ctx context.Context) ([]string, error) {
	var raw map[string]string
	err := c.do(ctx, "list_consumer_groups", func() error {
		var err error
		raw, err = c.admin.ListConsumerGroups()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list consumer groups: %w", err)
	}
	out := make([]string, 0, len(raw))
	for group := range raw {
		out = append(out, group)
	}
	return out, nil
}

// ConsumerLag computes newest-offset minus committed-offset per partition
// for one group. Partitions with no committed offset are skipped.
func (c *Client) ConsumerLag(ctx context.Context, group string) (map[string]map[int32]int64, error) {
	var resp *sarama.OffsetFetchResponse
	err := c.do(ctx, "consumer_lag", func() error {
		var err error
		resp, err = c.admin.ListConsumerGroupOffsets(group, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch offsets for group %s: %w", group, err)
	}

	lag := make(map[string]map[int32]int64)
	for topic, blocks := range resp.Blocks {
		for partition, block := range blocks {
			if block == nil || block.Offset < 0 {
				continue
			}
			newest, err := doWithRetryValue(ctx, defaultRetryAttempts, func() (int64, error) {
				return c.client.GetOffset(topic, partition, sarama.OffsetNewest)
			})
			if err != nil {
				return nil, fmt.Errorf("newest offset for %s[%d]: %w", topic, partition, err)
			}
			if lag[topic] == nil {
				lag[topic] = make(map[int32]int64)
			}
			delta := newest - block.Offset
			if delta < 0 {
				delta = 0
			}
			lag[topic][partition] = delta
		}
	}
	return lag, nil
}
