package syncengine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvaz1306/owui-kb-s3-sync-webhook/errors"
	"github.com/cvaz1306/owui-kb-s3-sync-webhook/mapstore"
)

// fakeSource serves objects from an in-memory map through real temp files so
// the engine's cleanup path is exercised.
type fakeSource struct {
	mu           sync.Mutex
	objects      map[string]string
	listErr      error
	downloadErrs map[string]error
	downloads    int
}

func newFakeSource(objects map[string]string) *fakeSource {
	return &fakeSource{
		objects:      objects,
		downloadErrs: make(map[string]error),
	}
}

func (s *fakeSource) Download(_ context.Context, _, key string) (string, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.downloadErrs[key]; err != nil {
		return "", nil, err
	}
	content, ok := s.objects[key]
	if !ok {
		return "", nil, fmt.Errorf("no such object: %s", key)
	}

	tmp, err := os.CreateTemp("", "fake-source-*")
	if err != nil {
		return "", nil, err
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return "", nil, err
	}
	tmp.Close()

	s.downloads++
	name := tmp.Name()
	return name, func() { os.Remove(name) }, nil
}

func (s *fakeSource) ListKeys(_ context.Context, _ string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listErr != nil {
		return nil, s.listErr
	}
	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// fakeKnowledge tracks attached artifacts and supports per-name failures.
type fakeKnowledge struct {
	mu         sync.Mutex
	nextID     int
	uploaded   map[string]string // artifact ID -> content
	attached   map[string]bool   // artifact IDs in the collection
	uploadErrs map[string]error  // by file name
	attachErr  error
	detachErr  error
}

func newFakeKnowledge() *fakeKnowledge {
	return &fakeKnowledge{
		uploaded:   make(map[string]string),
		attached:   make(map[string]bool),
		uploadErrs: make(map[string]error),
	}
}

func (k *fakeKnowledge) UploadFile(_ context.Context, name string, r io.Reader) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.uploadErrs[name]; err != nil {
		return "", err
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	k.nextID++
	id := fmt.Sprintf("file-%d", k.nextID)
	k.uploaded[id] = string(content)
	return id, nil
}

func (k *fakeKnowledge) AddFileToKnowledge(_ context.Context, _, fileID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.attachErr != nil {
		return k.attachErr
	}
	k.attached[fileID] = true
	return nil
}

func (k *fakeKnowledge) RemoveFileFromKnowledge(_ context.Context, _, fileID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.detachErr != nil {
		return k.detachErr
	}
	delete(k.attached, fileID)
	return nil
}

func (k *fakeKnowledge) attachedCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.attached)
}

func newTestEngine(t *testing.T, src *fakeSource, kb *fakeKnowledge,
	store mapstore.Store, prune bool) *Engine {
	t.Helper()
	engine, err := New(Config{
		Bucket:       "docs",
		KnowledgeID:  "kb-1",
		PruneOrphans: prune,
	}, store, src, kb, nil, nil)
	require.NoError(t, err)
	return engine
}

func TestNewValidation(t *testing.T) {
	src := newFakeSource(nil)
	kb := newFakeKnowledge()
	store := mapstore.NewMemoryStore()

	_, err := New(Config{KnowledgeID: "kb-1"}, store, src, kb, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{Bucket: "docs"}, store, src, kb, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{Bucket: "docs", KnowledgeID: "kb-1"}, nil, src, kb, nil, nil)
	assert.Error(t, err)
}

func TestHandleCreatedRegistersAndMaps(t *testing.T) {
	src := newFakeSource(map[string]string{"a.txt": "hello"})
	kb := newFakeKnowledge()
	store := mapstore.NewMemoryStore()
	engine := newTestEngine(t, src, kb, store, false)

	ctx := context.Background()
	require.NoError(t, engine.HandleEvent(ctx, ChangeEvent{Type: EventCreated, Key: "a.txt"}))

	artifactID, err := store.Get(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", kb.uploaded[artifactID])
	assert.True(t, kb.attached[artifactID])
}

func TestCreatedThenRemovedLeavesNoEntry(t *testing.T) {
	src := newFakeSource(map[string]string{"a.txt": "hello"})
	kb := newFakeKnowledge()
	store := mapstore.NewMemoryStore()
	engine := newTestEngine(t, src, kb, store, false)

	ctx := context.Background()
	require.NoError(t, engine.HandleEvent(ctx, ChangeEvent{Type: EventCreated, Key: "a.txt"}))
	require.NoError(t, engine.HandleEvent(ctx, ChangeEvent{Type: EventRemoved, Key: "a.txt"}))

	_, err := store.Get(ctx, "a.txt")
	assert.ErrorIs(t, err, mapstore.ErrNotFound)
	assert.Equal(t, 0, kb.attachedCount())
}

func TestRemovedUnmappedIsNoOp(t *testing.T) {
	src := newFakeSource(nil)
	kb := newFakeKnowledge()
	store := mapstore.NewMemoryStore()
	engine := newTestEngine(t, src, kb, store, false)

	err := engine.HandleEvent(context.Background(),
		ChangeEvent{Type: EventRemoved, Key: "never-seen.txt"})
	assert.NoError(t, err)
}

func TestRemovedDeregisterFailureRetainsMapping(t *testing.T) {
	src := newFakeSource(map[string]string{"a.txt": "hello"})
	kb := newFakeKnowledge()
	store := mapstore.NewMemoryStore()
	engine := newTestEngine(t, src, kb, store, false)

	ctx := context.Background()
	require.NoError(t, engine.HandleEvent(ctx, ChangeEvent{Type: EventCreated, Key: "a.txt"}))

	kb.detachErr = errors.ErrDeregisterFailed
	err := engine.HandleEvent(ctx, ChangeEvent{Type: EventRemoved, Key: "a.txt"})
	require.Error(t, err)

	// Mapping must survive so a later removal or pruning pass can retry
	_, err = store.Get(ctx, "a.txt")
	assert.NoError(t, err)
}

func TestCreatedAttachFailureWritesNoMapping(t *testing.T) {
	src := newFakeSource(map[string]string{"a.txt": "hello"})
	kb := newFakeKnowledge()
	kb.attachErr = errors.ErrRegisterFailed
	store := mapstore.NewMemoryStore()
	engine := newTestEngine(t, src, kb, store, false)

	ctx := context.Background()
	err := engine.HandleEvent(ctx, ChangeEvent{Type: EventCreated, Key: "a.txt"})
	require.Error(t, err)

	_, err = store.Get(ctx, "a.txt")
	assert.ErrorIs(t, err, mapstore.ErrNotFound)

	// A later reconciliation repairs the gap once the service recovers
	kb.attachErr = nil
	report, err := engine.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, report.Uploaded)

	_, err = store.Get(ctx, "a.txt")
	assert.NoError(t, err)
}

func TestHandleEventUnknownType(t *testing.T) {
	src := newFakeSource(nil)
	kb := newFakeKnowledge()
	engine := newTestEngine(t, src, kb, mapstore.NewMemoryStore(), false)

	err := engine.HandleEvent(context.Background(), ChangeEvent{Type: "renamed", Key: "a.txt"})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestReconcileTwoRunScenario(t *testing.T) {
	src := newFakeSource(map[string]string{"a.txt": "aaa", "b.txt": "bbb"})
	kb := newFakeKnowledge()
	store := mapstore.NewMemoryStore()
	engine := newTestEngine(t, src, kb, store, false)

	ctx := context.Background()

	// a.txt arrives through the incremental path first
	require.NoError(t, engine.HandleEvent(ctx, ChangeEvent{Type: EventCreated, Key: "a.txt"}))

	report, err := engine.Reconcile(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, []string{"b.txt"}, report.Uploaded)
	assert.Equal(t, []string{"a.txt"}, report.AlreadyInOWUI)
	assert.Empty(t, report.Errors)

	// Second pass finds everything mapped and uploads nothing
	report, err = engine.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Uploaded)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, report.AlreadyInOWUI)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 2, src.downloads)
}

func TestReconcilePerKeyFailureIsolation(t *testing.T) {
	src := newFakeSource(map[string]string{"a.txt": "aaa", "bad.txt": "x", "c.txt": "ccc"})
	src.downloadErrs["bad.txt"] = errors.ErrConnectionTimeout
	kb := newFakeKnowledge()
	store := mapstore.NewMemoryStore()
	engine := newTestEngine(t, src, kb, store, false)

	report, err := engine.Reconcile(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a.txt", "c.txt"}, report.Uploaded)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "bad.txt")
}

func TestReconcileListFailureAbortsPass(t *testing.T) {
	src := newFakeSource(nil)
	src.listErr = errors.ErrConnectionLost
	kb := newFakeKnowledge()
	engine := newTestEngine(t, src, kb, mapstore.NewMemoryStore(), false)

	_, err := engine.Reconcile(context.Background())
	assert.Error(t, err)
}

func TestReconcilePrunesOrphans(t *testing.T) {
	src := newFakeSource(map[string]string{"kept.txt": "k"})
	kb := newFakeKnowledge()
	store := mapstore.NewMemoryStore()
	engine := newTestEngine(t, src, kb, store, true)

	ctx := context.Background()

	// gone.txt was synced earlier but no longer exists in the bucket
	require.NoError(t, kb.AddFileToKnowledge(ctx, "kb-1", "file-stale"))
	require.NoError(t, store.Set(ctx, "gone.txt", "file-stale"))

	report, err := engine.Reconcile(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"kept.txt"}, report.Uploaded)
	assert.Equal(t, []string{"gone.txt"}, report.Pruned)

	_, err = store.Get(ctx, "gone.txt")
	assert.ErrorIs(t, err, mapstore.ErrNotFound)
	assert.False(t, kb.attached["file-stale"])
}

func TestReconcilePruningRequiresOptIn(t *testing.T) {
	src := newFakeSource(map[string]string{})
	kb := newFakeKnowledge()
	store := mapstore.NewMemoryStore()
	engine := newTestEngine(t, src, kb, store, false)

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "gone.txt", "file-stale"))

	report, err := engine.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Pruned)

	_, err = store.Get(ctx, "gone.txt")
	assert.NoError(t, err)
}

func TestReconcileRespectsCancellation(t *testing.T) {
	src := newFakeSource(map[string]string{"a.txt": "aaa"})
	kb := newFakeKnowledge()
	engine := newTestEngine(t, src, kb, mapstore.NewMemoryStore(), false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Reconcile(ctx)
	assert.Error(t, err)
}

func TestReportJSONShape(t *testing.T) {
	report := NewReport()
	assert.NotNil(t, report.Uploaded)
	assert.NotNil(t, report.AlreadyInOWUI)
	assert.NotNil(t, report.Errors)
	assert.NotEmpty(t, report.RunID)
}
