package rest

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/streamgov/streamgov-backend/internal/audit"
	"github.com/streamgov/streamgov-backend/internal/collector"
	"github.com/streamgov/streamgov-backend/internal/connmgr"
	"github.com/streamgov/streamgov-backend/internal/events"
	"github.com/streamgov/streamgov-backend/internal/kafka"
	"github.com/streamgov/streamgov-backend/internal/models"
	"github.com/streamgov/streamgov-backend/internal/planner"
	"github.com/streamgov/streamgov-backend/internal/policy"
	"github.com/streamgov/streamgov-backend/internal/registry"
	"github.com/streamgov/streamgov-backend/internal/repository"
	"github.com/streamgov/streamgov-backend/internal/storage"
	"github.com/streamgov/streamgov-backend/migrations"
)

// fakeAdmin is an in-memory Kafka cluster.
type fakeAdmin struct {
	topics    map[string]kafka.TopicDetail
	deleteErr map[string]error
	deleted   []string
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{topics: map[string]kafka.TopicDetail{}, deleteErr: map[string]error{}}
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

func (f *fakeAdmin) CreateTopics(_ context.Context, topics []kafka.NewTopic) map[string]error {
	for _, t := range topics {
		cfg := map[string]string{}
		for k, v := range t.Config {
			if v != nil {
				cfg[k] = *v
			}
		}
		f.topics[t.Name] = kafka.TopicDetail{
			Name:              t.Name,
			Partitions:        int(t.Partitions),
			ReplicationFactor: int(t.ReplicationFactor),
			Config:            cfg,
		}
	}
	return nil
}

func (f *fakeAdmin) DeleteTopics(_ context.Context, names []string) map[string]error {
	failures := map[string]error{}
	for _, n := range names {
		if err, ok := f.deleteErr[n]; ok {
			failures[n] = err
			continue
		}
		delete(f.topics, n)
		f.deleted = append(f.deleted, n)
	}
	return failures
}

func (f *fakeAdmin) AlterTopicConfig(_ context.Context, name string, entries map[string]*string) error {
	d := f.topics[name]
	if d.Config == nil {
		d.Config = map[string]string{}
	}
	for k, v := range entries {
		if v == nil {
			delete(d.Config, k)
		} else {
			d.Config[k] = *v
		}
	}
	f.topics[name] = d
	return nil
}

func (f *fakeAdmin) CreatePartitions(_ context.Context, name string, count int32) error {
	d := f.topics[name]
	d.Partitions = int(count)
	f.topics[name] = d
	return nil
}

func (f *fakeAdmin) DescribeCluster(context.Context) (kafka.ClusterInfo, error) {
	return kafka.ClusterInfo{Brokers: []int32{1, 2, 3}, ControllerID: 1}, nil
}

func (f *fakeAdmin) DescribeLogDirs(context.Context) (map[string]map[int32]int64, error) {
	return map[string]map[int32]int64{}, nil
}

func (f *fakeAdmin) ConsumerLag(context.Context, string) (map[string]map[int32]int64, error) {
	return map[string]map[int32]int64{}, nil
}

func (f *fakeAdmin) ListConsumerGroups(context.Context) ([]string, error) { return nil, nil }

func (f *fakeAdmin) TestConnection(context.Context) models.ConnectionTestResult {
	return models.ConnectionTestResult{Success: true, LatencyMs: 3}
}

func (f *fakeAdmin) Close() error { return nil }

// fakeRegistry is an in-memory Schema Registry.
type fakeRegistry struct {
	subjects map[string]*registry.SubjectState
	compat   map[string]models.CompatibilityMode
	deleted  []string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		subjects: map[string]*registry.SubjectState{},
		compat:   map[string]models.CompatibilityMode{},
	}
}

func (f *fakeRegistry) ListSubjects(context.Context) ([]string, error) {
	out := make([]string, 0, len(f.subjects))
	for s := range f.subjects {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeRegistry) DescribeSubject(_ context.Context, subject string) (*registry.SubjectState, error) {
	return f.subjects[subject], nil
}

func (f *fakeRegistry) CheckCompatibility(_ context.Context, spec models.SchemaSpec) models.CompatibilityReport {
	return models.CompatibilityReport{Subject: spec.Subject, Mode: spec.Compatibility, IsCompatible: true}
}

func (f *fakeRegistry) RegisterSchema(_ context.Context, spec models.SchemaSpec) (*registry.SubjectState, error) {
	version := 1
	if prev, ok := f.subjects[spec.Subject]; ok {
		version = prev.Version + 1
	}
	state := &registry.SubjectState{
		Subject:    spec.Subject,
		SchemaID:   100 + version,
		Version:    version,
		SchemaType: spec.SchemaType,
		Schema:     spec.ResolvedSchema(),
	}
	f.subjects[spec.Subject] = state
	return state, nil
}

func (f *fakeRegistry) SetCompatibilityMode(_ context.Context, subject string, mode models.CompatibilityMode) error {
	f.compat[subject] = mode
	return nil
}

func (f *fakeRegistry) DeleteSubject(_ context.Context, subject string, permanent bool) ([]int, error) {
	state := f.subjects[subject]
	delete(f.subjects, subject)
	f.deleted = append(f.deleted, subject)
	if state == nil {
		return nil, nil
	}
	versions := make([]int, 0, state.Version)
	for v := 1; v <= state.Version; v++ {
		versions = append(versions, v)
	}
	return versions, nil
}

func (f *fakeRegistry) TestConnection(context.Context) models.ConnectionTestResult {
	return models.ConnectionTestResult{Success: true}
}

// fakeObjects is an in-memory object store.
type fakeObjects struct {
	objects map[string][]byte
}

func newFakeObjects() *fakeObjects { return &fakeObjects{objects: map[string][]byte{}} }

func (f *fakeObjects) EnsureBucket(context.Context) error { return nil }

func (f *fakeObjects) Put(_ context.Context, key string, data []byte, _ string, _ map[string]string) (storage.ObjectInfo, error) {
	f.objects[key] = data
	return storage.ObjectInfo{Key: key, URL: "s3://schemas/" + key, Checksum: storage.Checksum(data), Size: int64(len(data))}, nil
}

func (f *fakeObjects) Get(_ context.Context, key string) ([]byte, error) {
	return f.objects[key], nil
}

func (f *fakeObjects) DeletePrefix(_ context.Context, prefix string) (int, error) {
	n := 0
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			delete(f.objects, key)
			n++
		}
	}
	return n, nil
}

func (f *fakeObjects) TestConnection(context.Context) models.ConnectionTestResult {
	return models.ConnectionTestResult{Success: true}
}

// fixture assembles a full stack over a real SQLite store, with fake backend
// clients injected through the connection manager's factories.
type fixture struct {
	store    *repository.SQLiteStore
	admin    *fakeAdmin
	registry *fakeRegistry
	objects  *fakeObjects
	handler  *Handler
	router   *mux.Router

	clusterID  string
	registryID string
	storageID  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ddl, err := migrations.FS.ReadFile("001_initial_schema.sql")
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations(string(ddl)))

	fx := &fixture{
		store:    store,
		admin:    newFakeAdmin(),
		registry: newFakeRegistry(),
		objects:  newFakeObjects(),
	}

	ctx := context.Background()
	cluster := &models.ClusterEndpoint{Name: "dev-cluster", BootstrapServers: "kafka:9092", SecurityProtocol: "PLAINTEXT"}
	require.NoError(t, store.CreateClusterEndpoint(ctx, cluster))
	fx.clusterID = cluster.ID
	reg := &models.RegistryEndpoint{Name: "dev-registry", BaseURL: "http://registry:8081"}
	require.NoError(t, store.CreateRegistryEndpoint(ctx, reg))
	fx.registryID = reg.ID
	stor := &models.StorageEndpoint{Name: "dev-storage", Endpoint: "minio:9000", Bucket: "schemas"}
	require.NoError(t, store.CreateStorageEndpoint(ctx, stor))
	fx.storageID = stor.ID

	conns := connmgr.New(store, kafka.Options{}).WithFactories(
		func(*models.ClusterEndpoint) (kafka.Admin, error) { return fx.admin, nil },
		func(*models.RegistryEndpoint) (registry.Registry, error) { return fx.registry, nil },
		func(*models.StorageEndpoint) (storage.ObjectStore, error) { return fx.objects, nil },
	)

	logger := slog.Default()
	aud := audit.NewWriter(store, logger)
	bus := events.NewBus(logger)
	pl := planner.New(policy.NewEngine(), store, store, logger)
	ap := planner.NewApplier(store, store, store, aud, bus, logger)
	col := collector.New(conns, store, store, nil, collector.Options{}, logger)

	fx.handler = NewHandler(store, conns, pl, ap, col, 0, logger)
	fx.router = mux.NewRouter().PathPrefix("/api/v1").Subrouter()
	fx.handler.Routes(fx.router)
	return fx
}

func (fx *fixture) do(t *testing.T, method, target string, body *strings.Reader) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	req.Header.Set("X-Actor", "tester")
	rr := httptest.NewRecorder()
	fx.router.ServeHTTP(rr, req)
	return rr
}
