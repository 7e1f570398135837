package models

import "time"

// EndpointKind distinguishes the backend a connection endpoint points at.
type EndpointKind string

const (
	EndpointKafka    EndpointKind = "kafka"
	EndpointRegistry EndpointKind = "registry"
	EndpointStorage  EndpointKind = "storage"
)

// ClusterEndpoint holds the connection coordinates for one Kafka cluster.
// Credentials live here, not in process environment. Soft-delete via
// IsActive=false; any mutation invalidates the connection-manager cache.
type ClusterEndpoint struct {
	ID               string    `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	BootstrapServers string    `json:"bootstrap_servers" db:"bootstrap_servers"` // comma-separated host:port
	SecurityProtocol string    `json:"security_protocol" db:"security_protocol"` // PLAINTEXT, SASL_SSL, SSL
	SASLMechanism    string    `json:"sasl_mechanism,omitempty" db:"sasl_mechanism"`
	SASLUsername     string    `json:"-" db:"sasl_username"`
	SASLPassword     string    `json:"-" db:"sasl_password"`
	TLSCACert        string    `json:"-" db:"tls_ca_cert"`
	IsActive         bool      `json:"is_active" db:"is_active"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// RegistryEndpoint holds the coordinates for one Schema Registry.
type RegistryEndpoint struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	BaseURL   string    `json:"base_url" db:"base_url"`
	Username  string    `json:"-" db:"username"`
	Password  string    `json:"-" db:"password"`
	TLSCACert string    `json:"-" db:"tls_ca_cert"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// StorageEndpoint holds the coordinates for one S3-compatible object store.
type StorageEndpoint struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Endpoint  string    `json:"endpoint" db:"endpoint"`
	AccessKey string    `json:"-" db:"access_key"`
	SecretKey string    `json:"-" db:"secret_key"`
	Bucket    string    `json:"bucket" db:"bucket"`
	UseSSL    bool      `json:"use_ssl" db:"use_ssl"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ConnectionTestResult is the non-throwing outcome of a connectivity probe.
type ConnectionTestResult struct {
	Success   bool              `json:"success"`
	LatencyMs int64             `json:"latency_ms"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Error     string            `json:"error,omitempty"`
}
