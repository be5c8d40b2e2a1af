package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mweber/stocklens/internal/dataset"
	"github.com/mweber/stocklens/internal/domain"
	"github.com/mweber/stocklens/internal/logger"
	"github.com/mweber/stocklens/internal/storage"
)

// PostFetcher fetches posts for a search keyword.
type PostFetcher interface {
	SearchPosts(ctx context.Context, keyword string, limit int) ([]domain.Post, error)
}

// Embedder turns posts and queries into vectors of a fixed dimension.
type Embedder interface {
	EmbedPosts(ctx context.Context, posts []domain.Post) ([][]float32, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	Model() ModelInfo
}

// VectorIndex is the slice of the vector store the pipeline and query path
// depend on.
type VectorIndex interface {
	RecreateCollection(ctx context.Context, collection string, dim int) error
	DeleteCollection(ctx context.Context, collection string) error
	UpsertPosts(ctx context.Context, collection string, vectors [][]float32, posts []domain.Post) error
	SearchPayloads(ctx context.Context, collection string, vector []float32, k int) ([]domain.PostPayload, error)
}

// Catalog records completed datasets and resolves symbols to collections.
type Catalog interface {
	Record(ctx context.Context, ds *domain.Dataset) error
	GetByName(ctx context.Context, name string) (*domain.Dataset, error)
	LatestForSymbol(ctx context.Context, symbol string) (*domain.Dataset, error)
	List(ctx context.Context) ([]domain.Dataset, error)
	Delete(ctx context.Context, name string) error
}

// Job describes one ingestion run.
type Job struct {
	Name   string // dataset/collection name, unique per run
	Symbol string
	Query  string // search keyword
	Limit  int
}

// PipelineService sequences fetch → store → embed → index for one dataset.
type PipelineService struct {
	fetcher PostFetcher
	store   *dataset.Store
	embed   Embedder
	index   VectorIndex
	catalog Catalog
	archive storage.ObjectStorage // optional, nil disables archiving
	runs    *RunRegistry
	logger  *logger.Logger
}

// NewPipelineService creates a new pipeline service. archive may be nil.
func NewPipelineService(
	fetcher PostFetcher,
	store *dataset.Store,
	embed Embedder,
	index VectorIndex,
	catalog Catalog,
	archive storage.ObjectStorage,
	runs *RunRegistry,
	log *logger.Logger,
) *PipelineService {
	return &PipelineService{
		fetcher: fetcher,
		store:   store,
		embed:   embed,
		index:   index,
		catalog: catalog,
		archive: archive,
		runs:    runs,
		logger:  log,
	}
}

// log returns a logger from context if available, otherwise the default one.
func (s *PipelineService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Runs exposes the run registry backing this pipeline.
func (s *PipelineService) Runs() *RunRegistry {
	return s.runs
}

// Run executes the full ingestion pipeline for one job, advancing the run's
// status record as it goes. The returned error has already been recorded
// into the run status; callers that run jobs in the background may drop it.
func (s *PipelineService) Run(ctx context.Context, job Job) error {
	start := time.Now()

	if err := s.run(ctx, job); err != nil {
		s.runs.Update(job.Name, domain.RunStatusFailed, err.Error())
		s.log(ctx).WithError(err).WithFields(logger.Fields{
			logger.FieldRunID:  job.Name,
			logger.FieldSymbol: job.Symbol,
		}).Error("Pipeline run failed")
		return err
	}

	s.runs.Update(job.Name, domain.RunStatusCompleted,
		fmt.Sprintf("dataset %s ready for querying", job.Name))
	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info(ctx, "Pipeline run completed: name=%s, symbol=%s", job.Name, job.Symbol)
	return nil
}

func (s *PipelineService) run(ctx context.Context, job Job) error {
	s.runs.Update(job.Name, domain.RunStatusCollecting,
		fmt.Sprintf("collecting posts for %q", job.Query))

	posts, err := s.fetcher.SearchPosts(ctx, job.Query, job.Limit)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}

	if err := s.store.WriteRecords(job.Name, posts); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldRunID: job.Name,
		logger.FieldCount: len(posts),
	}).Info("Collected posts")

	s.runs.Update(job.Name, domain.RunStatusEmbedding,
		fmt.Sprintf("embedding %d posts with %s", len(posts), s.embed.Model().Name))

	vectors, err := s.embed.EmbedPosts(ctx, posts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if err := s.store.WriteEmbeddings(job.Name, vectors); err != nil {
		return fmt.Errorf("store embeddings: %w", err)
	}

	if err := s.upload(ctx, job.Name, vectors, posts); err != nil {
		return err
	}

	if err := s.catalog.Record(ctx, &domain.Dataset{
		Name:           job.Name,
		Symbol:         job.Symbol,
		SearchQuery:    job.Query,
		RecordCount:    len(posts),
		EmbeddingModel: s.embed.Model().Name,
		Dimensions:     s.embed.Model().Dimensions,
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	s.archiveDataset(ctx, job.Name)
	return nil
}

// upload recreates the collection and upserts all vectors. Recreating
// instead of upserting over the old collection guarantees a re-ingested
// dataset fully replaces its predecessor.
func (s *PipelineService) upload(ctx context.Context, name string, vectors [][]float32, posts []domain.Post) error {
	if err := s.index.RecreateCollection(ctx, name, s.embed.Model().Dimensions); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if err := s.index.UpsertPosts(ctx, name, vectors, posts); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	return nil
}

// EmbedDataset re-embeds an existing dataset from its CSV file and uploads
// the result, without fetching. Used by the collect CLI to reprocess data.
// When the local CSV is gone but an archive is configured, the CSV is
// restored from the archive first.
func (s *PipelineService) EmbedDataset(ctx context.Context, name string) ([][]float32, error) {
	posts, err := s.store.ReadRecords(name)
	if errors.Is(err, domain.ErrNotFound) && s.archive != nil {
		if rerr := s.restoreRecords(ctx, name); rerr != nil {
			return nil, rerr
		}
		posts, err = s.store.ReadRecords(name)
	}
	if err != nil {
		return nil, err
	}

	vectors, err := s.embed.EmbedPosts(ctx, posts)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if err := s.store.WriteEmbeddings(name, vectors); err != nil {
		return nil, fmt.Errorf("store embeddings: %w", err)
	}
	if err := s.upload(ctx, name, vectors, posts); err != nil {
		return nil, err
	}
	return vectors, nil
}

// archiveDataset uploads the dataset files to the archive bucket. Archive
// failures are logged, never fatal: the run already succeeded locally.
func (s *PipelineService) archiveDataset(ctx context.Context, name string) {
	if s.archive == nil {
		return
	}

	for _, file := range []struct {
		path, key, contentType string
	}{
		{s.store.CSVPath(name), "datasets/" + name + ".csv", "text/csv"},
		{s.store.NPYPath(name), "datasets/" + name + ".npy", "application/octet-stream"},
	} {
		f, err := os.Open(file.path)
		if err != nil {
			s.log(ctx).WithError(err).Warn("Failed to open dataset file for archiving")
			continue
		}

		info, err := f.Stat()
		if err == nil {
			err = s.archive.Upload(ctx, file.key, f, info.Size(), file.contentType)
		}
		f.Close()
		if err != nil {
			s.log(ctx).WithError(err).WithField(logger.FieldDataset, name).Warn("Failed to archive dataset file")
		}
	}
}

// restoreRecords pulls a dataset's CSV back from the archive into the
// local store.
func (s *PipelineService) restoreRecords(ctx context.Context, name string) error {
	key := "datasets/" + name + ".csv"

	ok, err := s.archive.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if !ok {
		return fmt.Errorf("dataset %s not archived: %w", name, domain.ErrNotFound)
	}

	body, err := s.archive.Download(ctx, key)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	defer body.Close()

	f, err := os.Create(s.store.CSVPath(name))
	if err != nil {
		return fmt.Errorf("restore dataset: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, body); err != nil {
		return fmt.Errorf("restore dataset: %w", err)
	}

	s.log(ctx).WithField(logger.FieldDataset, name).Info("Restored dataset CSV from archive")
	return nil
}

// DeleteDataset removes a dataset everywhere it lives: the vector
// collection, the local files, the archived copies, and the catalog entry.
// Returns domain.ErrNotFound when the catalog does not know the name.
func (s *PipelineService) DeleteDataset(ctx context.Context, name string) error {
	if _, err := s.catalog.GetByName(ctx, name); err != nil {
		return err
	}

	if err := s.index.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("index: %w", err)
	}

	for _, path := range []string{s.store.CSVPath(name), s.store.NPYPath(name)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove dataset file: %w", err)
		}
	}

	if s.archive != nil {
		for _, key := range []string{"datasets/" + name + ".csv", "datasets/" + name + ".npy"} {
			if err := s.archive.Delete(ctx, key); err != nil {
				s.log(ctx).WithError(err).WithField(logger.FieldDataset, name).Warn("Failed to delete archived dataset file")
			}
		}
	}

	if err := s.catalog.Delete(ctx, name); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	s.log(ctx).WithField(logger.FieldDataset, name).Info("Deleted dataset")
	return nil
}

// ErrQueueFull is returned when the ingestion queue cannot take more jobs.
var ErrQueueFull = errors.New("pipeline queue full")

// PipelineQueue is a bounded task queue with a fixed worker pool. Every
// accepted job eventually runs; a saturated queue rejects instead of
// growing without bound.
type PipelineQueue struct {
	pipeline *PipelineService
	jobs     chan Job
	wg       sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPipelineQueue creates a queue with the given worker count and backlog
// capacity and starts its workers.
func NewPipelineQueue(pipeline *PipelineService, workers, queueSize int) *PipelineQueue {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}

	q := &PipelineQueue{
		pipeline: pipeline,
		jobs:     make(chan Job, queueSize),
	}

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

func (q *PipelineQueue) worker() {
	defer q.wg.Done()
	for job := range q.jobs {
		// Errors are recorded in the run registry; the triggering
		// request has long since returned.
		ctx := logger.WithFields(context.Background(), logger.Fields{
			logger.FieldRunID:     job.Name,
			logger.FieldComponent: "pipeline",
		})
		_ = q.pipeline.Run(ctx, job)
	}
}

// Enqueue registers the run and hands the job to the worker pool. Returns
// ErrQueueFull when the backlog is saturated.
func (q *PipelineQueue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.New("pipeline queue closed")
	}

	q.pipeline.runs.Start(job.Name, job.Symbol)
	select {
	case q.jobs <- job:
		return nil
	default:
		q.pipeline.runs.Update(job.Name, domain.RunStatusFailed, "rejected: queue full")
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for in-flight runs to finish.
func (q *PipelineQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
}
