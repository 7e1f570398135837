package planner

import (
	"context"
	"fmt"

	"github.com/streamgov/streamgov-backend/internal/kafka"
	"github.com/streamgov/streamgov-backend/internal/models"
	"github.com/streamgov/streamgov-backend/internal/registry"
	"github.com/streamgov/streamgov-backend/internal/repository"
	"github.com/streamgov/streamgov-backend/internal/storage"
)

// fakeAdmin is an in-memory cluster. Per-name error maps inject failures.
type fakeAdmin struct {
	topics map[string]kafka.TopicDetail

	createErr    map[string]error
	deleteErr    map[string]error
	alterErr     map[string]error
	partitionErr map[string]error
	describeErr  error

	created        []string
	deleted        []string
	alterCalls     map[string]map[string]*string
	partitionCalls map[string]int32
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{
		topics:         map[string]kafka.TopicDetail{},
		alterCalls:     map[string]map[string]*string{},
		partitionCalls: map[string]int32{},
	}
}

func (f *fakeAdmin) ListTopics(context.Context) (map[string]kafka.TopicDetail, error) {
	return f.topics, nil
}

func (f *fakeAdmin) DescribeTopics(_ context.Context, names []string) (map[string]kafka.TopicDetail, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	out := map[string]kafka.TopicDetail{}
	for _, name := range names {
		if d, ok := f.topics[name]; ok {
			out[name] = d
		}
	}
	return out, nil
}

func (f *fakeAdmin) CreateTopics(_ context.Context, topics []kafka.NewTopic) map[string]error {
	failures := map[string]error{}
	for _, t := range topics {
		if err, ok := f.createErr[t.Name]; ok {
			failures[t.Name] = err
			continue
		}
		f.created = append(f.created, t.Name)
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
	return failures
}

func (f *fakeAdmin) DeleteTopics(_ context.Context, names []string) map[string]error {
	failures := map[string]error{}
	for _, name := range names {
		if err, ok := f.deleteErr[name]; ok {
			failures[name] = err
			continue
		}
		f.deleted = append(f.deleted, name)
		delete(f.topics, name)
	}
	return failures
}

func (f *fakeAdmin) AlterTopicConfig(_ context.Context, name string, entries map[string]*string) error {
	if err, ok := f.alterErr[name]; ok {
		return err
	}
	f.alterCalls[name] = entries
	return nil
}

func (f *fakeAdmin) CreatePartitions(_ context.Context, name string, count int32) error {
	if err, ok := f.partitionErr[name]; ok {
		return err
	}
	f.partitionCalls[name] = count
	return nil
}

func (f *fakeAdmin) DescribeCluster(context.Context) (kafka.ClusterInfo, error) {
	return kafka.ClusterInfo{}, nil
}
func (f *fakeAdmin) DescribeLogDirs(context.Context) (map[string]map[int32]int64, error) {
	return nil, nil
}
func (f *fakeAdmin) ConsumerLag(context.Context, string) (map[string]map[int32]int64, error) {
	return nil, nil
}
func (f *fakeAdmin) ListConsumerGroups(context.Context) ([]string, error) { return nil, nil }
func (f *fakeAdmin) TestConnection(context.Context) models.ConnectionTestResult {
	return models.ConnectionTestResult{Success: true}
}
func (f *fakeAdmin) Close() error { return nil }

// fakePolicySource has no ACTIVE policies; built-in defaults apply.
type fakePolicySource struct{}

func (fakePolicySource) GetActivePolicy(context.Context, models.PolicyType, string) (*models.Policy, error) {
	return nil, nil
}

type planKey struct {
	kind     repository.PlanKind
	changeID string
}

type fakePlanStore struct {
	plans   map[planKey]*models.Plan
	results map[planKey]*models.ApplyResult
	saveErr error
}

func newFakePlanStore() *fakePlanStore {
	return &fakePlanStore{plans: map[planKey]*models.Plan{}, results: map[planKey]*models.ApplyResult{}}
}

func (s *fakePlanStore) SavePlan(_ context.Context, kind repository.PlanKind, plan *models.Plan, _ string) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.plans[planKey{kind, plan.ChangeID}] = plan
	return nil
}

func (s *fakePlanStore) GetPlan(_ context.Context, kind repository.PlanKind, changeID string) (*models.Plan, error) {
	plan, ok := s.plans[planKey{kind, changeID}]
	if !ok {
		return nil, fmt.Errorf("plan %s not found", changeID)
	}
	return plan, nil
}

func (s *fakePlanStore) SaveApplyResult(_ context.Context, kind repository.PlanKind, result *models.ApplyResult, _ string) error {
	s.results[planKey{kind, result.ChangeID}] = result
	return nil
}

func (s *fakePlanStore) GetApplyResult(_ context.Context, kind repository.PlanKind, changeID string) (*models.ApplyResult, error) {
	r, ok := s.results[planKey{kind, changeID}]
	if !ok {
		return nil, fmt.Errorf("apply result %s not found", changeID)
	}
	return r, nil
}

type fakeMetadataStore struct {
	rows    map[string]*repository.TopicMetadataRecord
	saveErr error
}

func newFakeMetadataStore() *fakeMetadataStore {
	return &fakeMetadataStore{rows: map[string]*repository.TopicMetadataRecord{}}
}

func (s *fakeMetadataStore) SaveTopicMetadata(_ context.Context, rec *repository.TopicMetadataRecord) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.rows[rec.TopicName] = rec
	return nil
}

func (s *fakeMetadataStore) GetTopicMetadata(_ context.Context, topic string) (*repository.TopicMetadataRecord, error) {
	rec, ok := s.rows[topic]
	if !ok {
		return nil, fmt.Errorf("no metadata for %s", topic)
	}
	return rec, nil
}

func (s *fakeMetadataStore) ListTopicMetadata(context.Context) ([]*repository.TopicMetadataRecord, error) {
	out := make([]*repository.TopicMetadataRecord, 0, len(s.rows))
	for _, rec := range s.rows {
		out = append(out, rec)
	}
	return out, nil
}

func (s *fakeMetadataStore) DeleteTopicMetadata(_ context.Context, topic string) error {
	delete(s.rows, topic)
	return nil
}

type fakeAuditStore struct {
	records []*models.AuditRecord
}

func (s *fakeAuditStore) CreateAuditRecord(_ context.Context, rec *models.AuditRecord) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeAuditStore) ListAuditRecords(_ context.Context, changeID string) ([]*models.AuditRecord, error) {
	var out []*models.AuditRecord
	for _, rec := range s.records {
		if rec.ChangeID == changeID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// statuses returns the audit statuses for one change in write order.
func (s *fakeAuditStore) statuses(changeID string) []models.AuditStatus {
	var out []models.AuditStatus
	for _, rec := range s.records {
		if rec.ChangeID == changeID {
			out = append(out, rec.Status)
		}
	}
	return out
}

type fakeArtifactStore struct {
	saved   []*models.SchemaArtifact
	deleted []string
	saveErr error
}

func (s *fakeArtifactStore) SaveSchemaArtifact(_ context.Context, a *models.SchemaArtifact) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, a)
	return nil
}

func (s *fakeArtifactStore) ListSchemaArtifacts(_ context.Context, subject string) ([]*models.SchemaArtifact, error) {
	var out []*models.SchemaArtifact
	for _, a := range s.saved {
		if a.Subject == subject {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeArtifactStore) DeleteSchemaArtifacts(_ context.Context, subject string) error {
	s.deleted = append(s.deleted, subject)
	return nil
}

// fakeRegistry is an in-memory Schema Registry. Deletion follows the real
// registry's contract: a permanent delete is only accepted for a subject that
// was soft-deleted first.
type fakeRegistry struct {
	subjects    map[string]*registry.SubjectState
	registerErr map[string]error
	compatErr   map[string]error
	compatSet   map[string]models.CompatibilityMode
	incompat    map[string][]string // subject -> issues
	softDeleted map[string][]int
	deleted     []string
	deleteModes []bool // permanent flag per DeleteSubject call
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		subjects:    map[string]*registry.SubjectState{},
		compatSet:   map[string]models.CompatibilityMode{},
		softDeleted: map[string][]int{},
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
	if issues, ok := f.incompat[spec.Subject]; ok {
		return models.CompatibilityReport{Subject: spec.Subject, Mode: spec.Compatibility, IsCompatible: false, Issues: issues}
	}
	return models.CompatibilityReport{Subject: spec.Subject, Mode: spec.Compatibility, IsCompatible: true}
}

func (f *fakeRegistry) RegisterSchema(_ context.Context, spec models.SchemaSpec) (*registry.SubjectState, error) {
	if err, ok := f.registerErr[spec.Subject]; ok {
		return nil, err
	}
	version := 1
	if prev, ok := f.subjects[spec.Subject]; ok {
		version = prev.Version + 1
	}
	state := &registry.SubjectState{
		Subject:       spec.Subject,
		SchemaID:      100 + version,
		Version:       version,
		SchemaType:    spec.SchemaType,
		Schema:        spec.ResolvedSchema(),
		Compatibility: spec.Compatibility,
	}
	f.subjects[spec.Subject] = state
	return state, nil
}

func (f *fakeRegistry) SetCompatibilityMode(_ context.Context, subject string, mode models.CompatibilityMode) error {
	if err, ok := f.compatErr[subject]; ok {
		return err
	}
	f.compatSet[subject] = mode
	return nil
}

func (f *fakeRegistry) DeleteSubject(_ context.Context, subject string, permanent bool) ([]int, error) {
	f.deleteModes = append(f.deleteModes, permanent)
	if permanent {
		versions, ok := f.softDeleted[subject]
		if !ok {
			return nil, fmt.Errorf("subject %s must be soft-deleted before permanent delete", subject)
		}
		delete(f.softDeleted, subject)
		f.deleted = append(f.deleted, subject)
		return versions, nil
	}
	state, ok := f.subjects[subject]
	if !ok {
		return nil, fmt.Errorf("subject %s not found", subject)
	}
	versions := make([]int, 0, state.Version)
	for v := 1; v <= state.Version; v++ {
		versions = append(versions, v)
	}
	delete(f.subjects, subject)
	f.softDeleted[subject] = versions
	return versions, nil
}

func (f *fakeRegistry) TestConnection(context.Context) models.ConnectionTestResult {
	return models.ConnectionTestResult{Success: true}
}

// fakeObjectStore keeps objects in a map.
type fakeObjectStore struct {
	objects map[string][]byte
	putErr  error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}}
}

func (f *fakeObjectStore) EnsureBucket(context.Context) error { return nil }

func (f *fakeObjectStore) Put(_ context.Context, key string, data []byte, _ string, _ map[string]string) (storage.ObjectInfo, error) {
	if f.putErr != nil {
		return storage.ObjectInfo{}, f.putErr
	}
	f.objects[key] = data
	return storage.ObjectInfo{
		Key:      key,
		URL:      "s3://schemas/" + key,
		Checksum: storage.Checksum(data),
		Size:     int64(len(data)),
	}, nil
}

func (f *fakeObjectStore) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return data, nil
}

func (f *fakeObjectStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	deleted := 0
	for key := range f.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(f.objects, key)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeObjectStore) TestConnection(context.Context) models.ConnectionTestResult {
	return models.ConnectionTestResult{Success: true}
}

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }
