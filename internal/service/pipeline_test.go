package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mweber/stocklens/internal/dataset"
	"github.com/mweber/stocklens/internal/domain"
	"github.com/mweber/stocklens/internal/logger"
)

type stubFetcher struct {
	posts []domain.Post
	err   error

	// optional synchronization hooks for queue tests
	started chan struct{}
	release chan struct{}
}

func (f *stubFetcher) SearchPosts(ctx context.Context, keyword string, limit int) ([]domain.Post, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.posts, f.err
}

type stubEmbedder struct {
	dim int
	err error
}

func (e *stubEmbedder) EmbedPosts(ctx context.Context, posts []domain.Post) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	vectors := make([][]float32, len(posts))
	for i := range vectors {
		vectors[i] = make([]float32, e.dim)
	}
	return vectors, nil
}

func (e *stubEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return make([]float32, e.dim), nil
}

func (e *stubEmbedder) Model() ModelInfo {
	return ModelInfo{Name: "stub-model", Provider: ProviderLocal, Dimensions: e.dim}
}

type stubIndex struct {
	recreated []string
	deleted   []string
	upserted  map[string]int
	payloads  []domain.PostPayload
	searchErr error
	upsertErr error
}

func (x *stubIndex) RecreateCollection(ctx context.Context, collection string, dim int) error {
	x.recreated = append(x.recreated, collection)
	return nil
}

func (x *stubIndex) DeleteCollection(ctx context.Context, collection string) error {
	x.deleted = append(x.deleted, collection)
	return nil
}

func (x *stubIndex) UpsertPosts(ctx context.Context, collection string, vectors [][]float32, posts []domain.Post) error {
	if x.upsertErr != nil {
		return x.upsertErr
	}
	if x.upserted == nil {
		x.upserted = make(map[string]int)
	}
	x.upserted[collection] += len(posts)
	return nil
}

func (x *stubIndex) SearchPayloads(ctx context.Context, collection string, vector []float32, k int) ([]domain.PostPayload, error) {
	return x.payloads, x.searchErr
}

type stubCatalog struct {
	recorded []domain.Dataset
	latest   *domain.Dataset
}

func (c *stubCatalog) Record(ctx context.Context, ds *domain.Dataset) error {
	c.recorded = append(c.recorded, *ds)
	return nil
}

func (c *stubCatalog) GetByName(ctx context.Context, name string) (*domain.Dataset, error) {
	for i := range c.recorded {
		if c.recorded[i].Name == name {
			return &c.recorded[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (c *stubCatalog) LatestForSymbol(ctx context.Context, symbol string) (*domain.Dataset, error) {
	if c.latest == nil {
		return nil, domain.ErrNotFound
	}
	return c.latest, nil
}

func (c *stubCatalog) List(ctx context.Context) ([]domain.Dataset, error) {
	return c.recorded, nil
}

func (c *stubCatalog) Delete(ctx context.Context, name string) error {
	for i := range c.recorded {
		if c.recorded[i].Name == name {
			c.recorded = append(c.recorded[:i], c.recorded[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// stubArchive is an in-memory ObjectStorage.
type stubArchive struct {
	objects map[string][]byte
}

func newStubArchive() *stubArchive {
	return &stubArchive{objects: make(map[string][]byte)}
}

func (a *stubArchive) EnsureBucket(ctx context.Context) error { return nil }

func (a *stubArchive) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	a.objects[key] = data
	return nil
}

func (a *stubArchive) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := a.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (a *stubArchive) Delete(ctx context.Context, key string) error {
	delete(a.objects, key)
	return nil
}

func (a *stubArchive) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := a.objects[key]
	return ok, nil
}

func newTestPipeline(t *testing.T, fetcher PostFetcher, index *stubIndex, catalog *stubCatalog) (*PipelineService, *dataset.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := dataset.NewStore(filepath.Join(dir, "csv"), filepath.Join(dir, "npy"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	p := NewPipelineService(fetcher, store, &stubEmbedder{dim: 4}, index, catalog, nil,
		NewRunRegistry(), logger.NewDefault())
	return p, store
}

func TestPipelineRun(t *testing.T) {
	fetcher := &stubFetcher{posts: []domain.Post{
		{Title: "post one", Score: 1, CreatedAt: time.Unix(1700000000, 0).UTC()},
		{Title: "post two", Score: 2, CreatedAt: time.Unix(1700000100, 0).UTC()},
	}}
	index := &stubIndex{}
	catalog := &stubCatalog{}
	p, store := newTestPipeline(t, fetcher, index, catalog)

	job := Job{Name: "tsla_20250812_143022", Symbol: "TSLA", Query: "TSLA stock", Limit: 10}
	if err := p.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}

	run, ok := p.Runs().Get(job.Name)
	if !ok || run.Status != domain.RunStatusCompleted {
		t.Errorf("run status = %+v, want completed", run)
	}

	posts, err := store.ReadRecords(job.Name)
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(posts) != 2 {
		t.Errorf("stored %d posts, want 2", len(posts))
	}
	vectors, err := store.ReadEmbeddings(job.Name)
	if err != nil {
		t.Fatalf("ReadEmbeddings: %v", err)
	}
	if len(vectors) != 2 || len(vectors[0]) != 4 {
		t.Errorf("embeddings shape = (%d, ...), want (2, 4)", len(vectors))
	}

	if len(index.recreated) != 1 || index.recreated[0] != job.Name {
		t.Errorf("recreated = %v", index.recreated)
	}
	if index.upserted[job.Name] != 2 {
		t.Errorf("upserted %d points, want 2", index.upserted[job.Name])
	}

	if len(catalog.recorded) != 1 {
		t.Fatalf("recorded %d datasets", len(catalog.recorded))
	}
	ds := catalog.recorded[0]
	if ds.Symbol != "TSLA" || ds.RecordCount != 2 || ds.EmbeddingModel != "stub-model" || ds.Dimensions != 4 {
		t.Errorf("dataset = %+v", ds)
	}
}

func TestPipelineRunFetchFailure(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("reddit down")}
	p, _ := newTestPipeline(t, fetcher, &stubIndex{}, &stubCatalog{})

	job := Job{Name: "tsla_20250812_143022", Symbol: "TSLA", Query: "TSLA stock", Limit: 10}
	if err := p.Run(context.Background(), job); err == nil {
		t.Fatal("expected error")
	}

	run, _ := p.Runs().Get(job.Name)
	if run.Status != domain.RunStatusFailed {
		t.Errorf("status = %q, want failed", run.Status)
	}
	if run.Message == "" {
		t.Error("failed run has no message")
	}
}

func TestPipelineQueueRunsJobs(t *testing.T) {
	fetcher := &stubFetcher{posts: []domain.Post{{Title: "post"}}}
	p, _ := newTestPipeline(t, fetcher, &stubIndex{}, &stubCatalog{})
	q := NewPipelineQueue(p, 2, 4)

	if err := q.Enqueue(Job{Name: "aapl_20250812_143022", Symbol: "AAPL", Query: "AAPL stock", Limit: 5}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	q.Close()

	run, ok := p.Runs().Get("aapl_20250812_143022")
	if !ok || run.Status != domain.RunStatusCompleted {
		t.Errorf("run = %+v, want completed", run)
	}
}

func TestPipelineQueueFull(t *testing.T) {
	fetcher := &stubFetcher{
		posts:   []domain.Post{{Title: "post"}},
		started: make(chan struct{}, 3),
		release: make(chan struct{}),
	}
	p, _ := newTestPipeline(t, fetcher, &stubIndex{}, &stubCatalog{})
	q := NewPipelineQueue(p, 1, 1)

	// First job occupies the worker.
	if err := q.Enqueue(Job{Name: "job1", Symbol: "A", Query: "q", Limit: 1}); err != nil {
		t.Fatalf("Enqueue job1: %v", err)
	}
	<-fetcher.started

	// Second job fills the backlog.
	if err := q.Enqueue(Job{Name: "job2", Symbol: "B", Query: "q", Limit: 1}); err != nil {
		t.Fatalf("Enqueue job2: %v", err)
	}

	// Third job must be rejected.
	if err := q.Enqueue(Job{Name: "job3", Symbol: "C", Query: "q", Limit: 1}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	run, _ := p.Runs().Get("job3")
	if run.Status != domain.RunStatusFailed {
		t.Errorf("rejected run status = %q, want failed", run.Status)
	}

	close(fetcher.release)
	q.Close()

	for _, name := range []string{"job1", "job2"} {
		run, _ := p.Runs().Get(name)
		if run.Status != domain.RunStatusCompleted {
			t.Errorf("%s status = %q, want completed", name, run.Status)
		}
	}
}

func TestEmbedDatasetRestoresFromArchive(t *testing.T) {
	index := &stubIndex{}
	p, store := newTestPipeline(t, &stubFetcher{}, index, &stubCatalog{})
	archive := newStubArchive()
	p.archive = archive

	const name = "aapl_20250812_143022"
	posts := []domain.Post{
		{Title: "post one", Score: 3, CreatedAt: time.Unix(1700000000, 0).UTC()},
	}
	if err := store.WriteRecords(name, posts); err != nil {
		t.Fatalf("WriteRecords: %v", err)
	}
	csvData, err := os.ReadFile(store.CSVPath(name))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	archive.objects["datasets/"+name+".csv"] = csvData
	if err := os.Remove(store.CSVPath(name)); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	vectors, err := p.EmbedDataset(context.Background(), name)
	if err != nil {
		t.Fatalf("EmbedDataset: %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("got %d vectors, want 1", len(vectors))
	}
	if index.upserted[name] != 1 {
		t.Errorf("upserted %d points, want 1", index.upserted[name])
	}
	if _, err := store.ReadRecords(name); err != nil {
		t.Errorf("restored CSV unreadable: %v", err)
	}
}

func TestEmbedDatasetMissingEverywhere(t *testing.T) {
	p, _ := newTestPipeline(t, &stubFetcher{}, &stubIndex{}, &stubCatalog{})
	p.archive = newStubArchive()

	if _, err := p.EmbedDataset(context.Background(), "nope_20250812_143022"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteDataset(t *testing.T) {
	index := &stubIndex{}
	catalog := &stubCatalog{}
	p, store := newTestPipeline(t, &stubFetcher{}, index, catalog)
	archive := newStubArchive()
	p.archive = archive

	const name = "tsla_20250812_143022"
	if err := store.WriteRecords(name, []domain.Post{{Title: "post"}}); err != nil {
		t.Fatalf("WriteRecords: %v", err)
	}
	if err := store.WriteEmbeddings(name, [][]float32{{1, 2, 3, 4}}); err != nil {
		t.Fatalf("WriteEmbeddings: %v", err)
	}
	catalog.recorded = []domain.Dataset{{Name: name, Symbol: "TSLA"}}
	archive.objects["datasets/"+name+".csv"] = []byte("csv")
	archive.objects["datasets/"+name+".npy"] = []byte("npy")

	if err := p.DeleteDataset(context.Background(), name); err != nil {
		t.Fatalf("DeleteDataset: %v", err)
	}

	if len(index.deleted) != 1 || index.deleted[0] != name {
		t.Errorf("deleted collections = %v", index.deleted)
	}
	if _, err := os.Stat(store.CSVPath(name)); !os.IsNotExist(err) {
		t.Errorf("CSV still present: %v", err)
	}
	if _, err := os.Stat(store.NPYPath(name)); !os.IsNotExist(err) {
		t.Errorf("NPY still present: %v", err)
	}
	if len(archive.objects) != 0 {
		t.Errorf("archive still holds %d objects", len(archive.objects))
	}
	if _, err := catalog.GetByName(context.Background(), name); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("catalog entry survived: %v", err)
	}
}

func TestDeleteDatasetUnknown(t *testing.T) {
	index := &stubIndex{}
	p, _ := newTestPipeline(t, &stubFetcher{}, index, &stubCatalog{})

	err := p.DeleteDataset(context.Background(), "missing_20250812_143022")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(index.deleted) != 0 {
		t.Errorf("deleted collections = %v, want none", index.deleted)
	}
}

func TestPipelineQueueClosed(t *testing.T) {
	p, _ := newTestPipeline(t, &stubFetcher{posts: []domain.Post{{Title: "post"}}}, &stubIndex{}, &stubCatalog{})
	q := NewPipelineQueue(p, 1, 1)
	q.Close()

	if err := q.Enqueue(Job{Name: "late", Symbol: "X", Query: "q", Limit: 1}); err == nil {
		t.Fatal("expected error after Close")
	}
}
