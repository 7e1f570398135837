// Package connmgr caches backend clients per endpoint id. Clients are built
// lazily from stored endpoints and reused until the endpoint changes.
package connmgr

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/streamgov/streamgov-backend/internal/apperr"
	"github.com/streamgov/streamgov-backend/internal/kafka"
	"github.com/streamgov/streamgov-backend/internal/models"
	"github.com/streamgov/streamgov-backend/internal/pkg/metrics"
	"github.com/streamgov/streamgov-backend/internal/registry"
	"github.com/streamgov/streamgov-backend/internal/repository"
	"github.com/streamgov/streamgov-backend/internal/storage"
)

// Factories build clients from endpoint rows. Tests inject fakes.
type KafkaFactory func(*models.ClusterEndpoint) (kafka.Admin, error)
type RegistryFactory func(*models.RegistryEndpoint) (registry.Registry, error)
type StorageFactory func(*models.StorageEndpoint) (storage.ObjectStore, error)

// Manager hands out cached backend clients keyed by (kind, id).
// Concurrent misses for the same endpoint build exactly one client.
type Manager struct {
	store repository.EndpointStore

	newKafka    KafkaFactory
	newRegistry RegistryFactory
	newStorage  StorageFactory

	mu              sync.RWMutex
	kafkaClients    map[string]kafka.Admin
	registryClients map[string]registry.Registry
	storageClients  map[string]storage.ObjectStore

	group singleflight.Group
}

// New creates a Manager with the production client factories.
func New(store repository.EndpointStore, kafkaOpts kafka.Options) *Manager {
	return &Manager{
		store: store,
		newKafka: func(e *models.ClusterEndpoint) (kafka.Admin, error) {
			return kafka.NewClient(e, kafkaOpts)
		},
		newRegistry: func(e *models.RegistryEndpoint) (registry.Registry, error) {
			return registry.NewClient(e)
		},
		newStorage: func(e *models.StorageEndpoint) (storage.ObjectStore, error) {
			return storage.NewClient(e)
		},
		kafkaClients:    make(map[string]kafka.Admin),
		registryClients: make(map[string]registry.Registry),
		storageClients:  make(map[string]storage.ObjectStore),
	}
}

// WithFactories overrides the client factories; nil arguments keep defaults.
func (m *Manager) WithFactories(kf KafkaFactory, rf RegistryFactory, sf StorageFactory) *Manager {
	if kf != nil {
		m.newKafka = kf
	}
	if rf != nil {
		m.newRegistry = rf
	}
	if sf != nil {
		m.newStorage = sf
	}
	return m
}

func cacheKey(kind models.EndpointKind, id string) string {
	return string(kind) + ":" + id
}

// Kafka returns the cached admin client for a cluster endpoint, building it
// on first use.
func (m *Manager) Kafka(ctx context.Context, id string) (kafka.Admin, error) {
	m.mu.RLock()
	client, ok := m.kafkaClients[id]
	m.mu.RUnlock()
	if ok {
		return client, nil
	}

	v, err, _ := m.group.Do(cacheKey(models.EndpointKafka, id), func() (interface{}, error) {
		m.mu.RLock()
		if client, ok := m.kafkaClients[id]; ok {
			m.mu.RUnlock()
			return client, nil
		}
		m.mu.RUnlock()

		endpoint, err := m.store.GetClusterEndpoint(ctx, id)
		if err != nil {
			return nil, err
		}
		if !endpoint.IsActive {
			return nil, apperr.Inactive("cluster endpoint", id)
		}
		client, err := m.newKafka(endpoint)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.kafkaClients[id] = client
		metrics.ConnectionCacheSize.WithLabelValues(string(models.EndpointKafka)).Set(float64(len(m.kafkaClients)))
		m.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(kafka.Admin), nil
}

// Registry returns the cached client for a registry endpoint.
func (m *Manager) Registry(ctx context.Context, id string) (registry.Registry, error) {
	m.mu.RLock()
	client, ok := m.registryClients[id]
	m.mu.RUnlock()
	if ok {
		return client, nil
	}

	v, err, _ := m.group.Do(cacheKey(models.EndpointRegistry, id), func() (interface{}, error) {
		m.mu.RLock()
		if client, ok := m.registryClients[id]; ok {
			m.mu.RUnlock()
			return client, nil
		}
		m.mu.RUnlock()

		endpoint, err := m.store.GetRegistryEndpoint(ctx, id)
		if err != nil {
			return nil, err
		}
		if !endpoint.IsActive {
			return nil, apperr.Inactive("registry endpoint", id)
		}
		client, err := m.newRegistry(endpoint)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.registryClients[id] = client
		metrics.ConnectionCacheSize.WithLabelValues(string(models.EndpointRegistry)).Set(float64(len(m.registryClients)))
		m.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(registry.Registry), nil
}

// Storage returns the cached client for a storage endpoint.
func (m *Manager) Storage(ctx context.Context, id string) (storage.ObjectStore, error) {
	m.mu.RLock()
	client, ok := m.storageClients[id]
	m.mu.RUnlock()
	if ok {
		return client, nil
	}

	v, err, _ := m.group.Do(cacheKey(models.EndpointStorage, id), func() (interface{}, error) {
		m.mu.RLock()
		if client, ok := m.storageClients[id]; ok {
			m.mu.RUnlock()
			return client, nil
		}
		m.mu.RUnlock()

		endpoint, err := m.store.GetStorageEndpoint(ctx, id)
		if err != nil {
			return nil, err
		}
		if !endpoint.IsActive {
			return nil, apperr.Inactive("storage endpoint", id)
		}
		client, err := m.newStorage(endpoint)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.storageClients[id] = client
		metrics.ConnectionCacheSize.WithLabelValues(string(models.EndpointStorage)).Set(float64(len(m.storageClients)))
		m.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(storage.ObjectStore), nil
}

// TestConnection probes one endpoint through its (possibly fresh) client.
func (m *Manager) TestConnection(ctx context.Context, kind models.EndpointKind, id string) (models.ConnectionTestResult, error) {
	switch kind {
	case models.EndpointKafka:
		client, err := m.Kafka(ctx, id)
		if err != nil {
			return models.ConnectionTestResult{}, err
		}
		return client.TestConnection(ctx), nil
	case models.EndpointRegistry:
		client, err := m.Registry(ctx, id)
		if err != nil {
			return models.ConnectionTestResult{}, err
		}
		return client.TestConnection(ctx), nil
	case models.EndpointStorage:
		client, err := m.Storage(ctx, id)
		if err != nil {
			return models.ConnectionTestResult{}, err
		}
		return client.TestConnection(ctx), nil
	default:
		return models.ConnectionTestResult{}, fmt.Errorf("unknown endpoint kind %q", kind)
	}
}

// Invalidate drops the cached client for one endpoint. Call after any
// endpoint mutation or deactivation.
func (m *Manager) Invalidate(kind models.EndpointKind, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch kind {
	case models.EndpointKafka:
		if client, ok := m.kafkaClients[id]; ok {
			_ = client.Close()
			delete(m.kafkaClients, id)
			metrics.ConnectionCacheSize.WithLabelValues(string(kind)).Set(float64(len(m.kafkaClients)))
		}
	case models.EndpointRegistry:
		delete(m.registryClients, id)
		metrics.ConnectionCacheSize.WithLabelValues(string(kind)).Set(float64(len(m.registryClients)))
	case models.EndpointStorage:
		delete(m.storageClients, id)
		metrics.ConnectionCacheSize.WithLabelValues(string(kind)).Set(float64(len(m.storageClients)))
	}
}

// ClearAll drops every cached client. Used at shutdown.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, client := range m.kafkaClients {
		_ = client.Close()
		delete(m.kafkaClients, id)
	}
	m.registryClients = make(map[string]registry.Registry)
	m.storageClients = make(map[string]storage.ObjectStore)
	for _, kind := range []models.EndpointKind{models.EndpointKafka, models.EndpointRegistry, models.EndpointStorage} {
		metrics.ConnectionCacheSize.WithLabelValues(string(kind)).Set(0)
	}
}
