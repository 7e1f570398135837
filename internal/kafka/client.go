// Package kafka wraps the Kafka admin protocol for governance operations.
// One Client serves one cluster endpoint; the connection manager caches them.
package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"golang.org/x/time/rate"

	"github.com/streamgov/streamgov-backend/internal/models"
)

// PartitionInfo is the replica layout of one partition.
type PartitionInfo struct {
	ID       int32
	Leader   int32
	Replicas []int32
	ISR      []int32
}

// TopicDetail is the observed state of one topic.
type TopicDetail struct {
	Name              string
	Partitions        int
	ReplicationFactor int
	Config            map[string]string
	PartitionInfo     []PartitionInfo
}

// NewTopic is the desired shape for a topic creation.
type NewTopic struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
	Config            map[string]*string
}

// ClusterInfo is the broker-level view returned by DescribeCluster.
type ClusterInfo struct {
	Brokers      []int32
	ControllerID int32
}

// Admin is the cluster operation surface the planner, applier, and collector
// consume. Tests substitute fakes.
type Admin interface {
	ListTopics(ctx context.Context) (map[string]TopicDetail, error)
	DescribeTopics(ctx context.Context, names []string) (map[string]TopicDetail, error)
	// CreateTopics and DeleteTopics return per-item failures; an absent key
	// means the item succeeded. One broken topic never fails its siblings.
	CreateTopics(ctx context.Context, topics []NewTopic) map[string]error
	DeleteTopics(ctx context.Context, names []string) map[string]error
	AlterTopicConfig(ctx context.Context, name string, entries map[string]*string) error
	CreatePartitions(ctx context.Context, name string, count int32) error
	DescribeCluster(ctx context.Context) (ClusterInfo, error)
	// DescribeLogDirs returns on-disk partition sizes: topic -> partition -> bytes.
	DescribeLogDirs(ctx context.Context) (map[string]map[int32]int64, error)
	// ConsumerLag returns committed-offset lag: topic -> partition -> messages.
	ConsumerLag(ctx context.Context, group string) (map[string]map[int32]int64, error)
	ListConsumerGroups(ctx context.Context) ([]string, error)
	TestConnection(ctx context.Context) models.ConnectionTestResult
	Close() error
}

// Options tune per-client behavior; zero values use defaults.
type Options struct {
	AdminTimeout time.Duration // read-only admin calls; default 30s
	ApplyTimeout time.Duration // mutating admin calls; default 60s
	RateLimit    float64       // token bucket rate per second; 0 = no limit
	RateBurst    int
}

// Client is the sarama-backed Admin implementation.
type Client struct {
	clusterID string
	admin     sarama.ClusterAdmin
	client    sarama.Client
	limiter   *rate.Limiter
	breaker   *CircuitBreaker
}

// NewClient connects to the cluster described by the endpoint.
func NewClient(endpoint *models.ClusterEndpoint, opts Options) (*Client, error) {
	cfg, err := saramaConfig(endpoint, opts)
	if err != nil {
		return nil, err
	}

	addrs := splitServers(endpoint.BootstrapServers)
	if len(addrs) == 0 {
		return nil, fmt.Errorf("cluster endpoint %s has no bootstrap servers", endpoint.ID)
	}

	client, err := sarama.NewClient(addrs, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cluster %s: %w", endpoint.ID, err)
	}
	admin, err := sarama.NewClusterAdminFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create admin for cluster %s: %w", endpoint.ID, err)
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		clusterID: endpoint.ID,
		admin:     admin,
		client:    client,
		limiter:   limiter,
		breaker:   NewCircuitBreaker(endpoint.ID),
	}, nil
}

func saramaConfig(endpoint *models.ClusterEndpoint, opts Options) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "streamgov-backend"
	cfg.Version = sarama.V3_6_0_0

	adminTimeout := opts.AdminTimeout
	if adminTimeout <= 0 {
		adminTimeout = 30 * time.Second
	}
	applyTimeout := opts.ApplyTimeout
	if applyTimeout <= 0 {
		applyTimeout = 60 * time.Second
	}
	// The admin timeout rides on every request; mutating calls get headroom
	// through the dial/read deadlines instead.
	cfg.Admin.Timeout = adminTimeout
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = applyTimeout
	cfg.Net.WriteTimeout = applyTimeout

	protocol := strings.ToUpper(endpoint.SecurityProtocol)
	if strings.Contains(protocol, "SSL") {
		cfg.Net.TLS.Enable = true
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
		if endpoint.TLSCACert != "" {
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM([]byte(endpoint.TLSCACert)) {
				return nil, fmt.Errorf("cluster endpoint %s: invalid CA certificate", endpoint.ID)
			}
			tlsCfg.RootCAs = pool
		}
		cfg.Net.TLS.Config = tlsCfg
	}

	if strings.HasPrefix(protocol, "SASL") {
		cfg.Net.SASL.Enable = true
		cfg.Net.SASL.User = endpoint.SASLUsername
		cfg.Net.SASL.Password = endpoint.SASLPassword
		switch strings.ToUpper(endpoint.SASLMechanism) {
		case "", "PLAIN":
			cfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		case "SCRAM-SHA-256":
			cfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			cfg.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{hashFn: scramSHA256}
			}
		case "SCRAM-SHA-512":
			cfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			cfg.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{hashFn: scramSHA512}
			}
		default:
			return nil, fmt.Errorf("cluster endpoint %s: unsupported SASL mechanism %q", endpoint.ID, endpoint.SASLMechanism)
		}
	}

	return cfg, nil
}

func splitServers(servers string) []string {
	var out []string
	for _, s := range strings.Split(servers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Close releases the underlying connections.
func (c *Client) Close() error {
	// Closing the admin closes the shared client.
	return c.admin.Close()
}

// TestConnection probes the cluster and never returns an error; failures are
// reported in the result.
func (c *Client) TestConnection(ctx context.Context) models.ConnectionTestResult {
	start := time.Now()
	info, err := c.DescribeCluster(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return models.ConnectionTestResult{Success: false, LatencyMs: latency, Error: err.Error()}
	}
	return models.ConnectionTestResult{
		Success:   true,
		LatencyMs: latency,
		Metadata: map[string]string{
			"broker_count":  strconv.Itoa(len(info.Brokers)),
			"controller_id": strconv.FormatInt(int64(info.ControllerID), 10),
		},
	}
}
