package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mweber/stocklens/internal/dataset"
	"github.com/mweber/stocklens/internal/domain"
	"github.com/mweber/stocklens/internal/logger"
	"github.com/mweber/stocklens/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubFetcher struct {
	posts []domain.Post
	block chan struct{} // when set, SearchPosts blocks until closed
}

func (f *stubFetcher) SearchPosts(ctx context.Context, keyword string, limit int) ([]domain.Post, error) {
	if f.block != nil {
		<-f.block
	}
	return f.posts, nil
}

type stubEmbedder struct{ dim int }

func (e *stubEmbedder) EmbedPosts(ctx context.Context, posts []domain.Post) ([][]float32, error) {
	vectors := make([][]float32, len(posts))
	for i := range vectors {
		vectors[i] = make([]float32, e.dim)
	}
	return vectors, nil
}

func (e *stubEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return make([]float32, e.dim), nil
}

func (e *stubEmbedder) Model() service.ModelInfo {
	return service.ModelInfo{Name: "stub-model", Provider: service.ProviderLocal, Dimensions: e.dim}
}

type stubIndex struct {
	payloads []domain.PostPayload
}

func (x *stubIndex) RecreateCollection(ctx context.Context, collection string, dim int) error {
	return nil
}

func (x *stubIndex) DeleteCollection(ctx context.Context, collection string) error {
	return nil
}

func (x *stubIndex) UpsertPosts(ctx context.Context, collection string, vectors [][]float32, posts []domain.Post) error {
	return nil
}

func (x *stubIndex) SearchPayloads(ctx context.Context, collection string, vector []float32, k int) ([]domain.PostPayload, error) {
	return x.payloads, nil
}

type stubCatalog struct {
	datasets []domain.Dataset
}

func (c *stubCatalog) Record(ctx context.Context, ds *domain.Dataset) error {
	c.datasets = append(c.datasets, *ds)
	return nil
}

func (c *stubCatalog) LatestForSymbol(ctx context.Context, symbol string) (*domain.Dataset, error) {
	for i := len(c.datasets) - 1; i >= 0; i-- {
		if c.datasets[i].Symbol == symbol {
			return &c.datasets[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (c *stubCatalog) GetByName(ctx context.Context, name string) (*domain.Dataset, error) {
	for i := range c.datasets {
		if c.datasets[i].Name == name {
			return &c.datasets[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (c *stubCatalog) List(ctx context.Context) ([]domain.Dataset, error) {
	return c.datasets, nil
}

func (c *stubCatalog) Delete(ctx context.Context, name string) error {
	for i := range c.datasets {
		if c.datasets[i].Name == name {
			c.datasets = append(c.datasets[:i], c.datasets[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

type stubRemover struct {
	err     error
	deleted []string
}

func (r *stubRemover) DeleteDataset(ctx context.Context, name string) error {
	if r.err != nil {
		return r.err
	}
	r.deleted = append(r.deleted, name)
	return nil
}

type stubAnswer struct{ answer string }

func (a *stubAnswer) GenerateAnswer(ctx context.Context, question string, contextPosts []domain.PostPayload) (string, error) {
	return a.answer, nil
}

func (a *stubAnswer) Model() string { return "stub-llm" }

func newTestQueue(t *testing.T, fetcher service.PostFetcher, workers, size int) (*service.PipelineQueue, *service.RunRegistry) {
	t.Helper()
	dir := t.TempDir()
	store, err := dataset.NewStore(filepath.Join(dir, "csv"), filepath.Join(dir, "npy"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	runs := service.NewRunRegistry()
	pipeline := service.NewPipelineService(fetcher, store, &stubEmbedder{dim: 4},
		&stubIndex{}, &stubCatalog{}, nil, runs, logger.NewDefault())
	q := service.NewPipelineQueue(pipeline, workers, size)
	t.Cleanup(q.Close)
	return q, runs
}

func performJSON(handler gin.HandlerFunc, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	handler(c)
	return w
}

func TestCollectDataAccepted(t *testing.T) {
	q, runs := newTestQueue(t, &stubFetcher{posts: []domain.Post{{Title: "post"}}}, 1, 4)
	h := NewPipelineHandler(q, runs, 50)

	w := performJSON(h.CollectData, http.MethodPost, "/collect-data",
		`{"stock_symbol": "TSLA"}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Status         string `json:"status"`
		CollectionName string `json:"collection_name"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "started" {
		t.Errorf("status = %q, want started", resp.Status)
	}
	if !strings.HasPrefix(resp.CollectionName, "tsla_") {
		t.Errorf("collection_name = %q, want tsla_ prefix", resp.CollectionName)
	}
	if _, ok := runs.Get(resp.CollectionName); !ok {
		t.Error("run not registered")
	}
}

func TestCollectDataValidation(t *testing.T) {
	q, runs := newTestQueue(t, &stubFetcher{}, 1, 4)
	h := NewPipelineHandler(q, runs, 50)

	for _, body := range []string{`{}`, `{"stock_symbol": ""}`, `not json`} {
		w := performJSON(h.CollectData, http.MethodPost, "/collect-data", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, w.Code)
		}
	}
}

func TestCollectDataQueueFull(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	q, runs := newTestQueue(t, &stubFetcher{block: block}, 1, 1)
	h := NewPipelineHandler(q, runs, 50)

	// Saturate worker and backlog, then expect rejection. The worker may
	// still hold the first job in the channel, so two fills are enough
	// only after the worker picks one up; a third attempt is always full.
	sawRejection := false
	for i := 0; i < 3; i++ {
		w := performJSON(h.CollectData, http.MethodPost, "/collect-data",
			`{"stock_symbol": "TSLA"}`)
		if w.Code == http.StatusServiceUnavailable {
			sawRejection = true
		}
	}
	if !sawRejection {
		t.Error("expected at least one 503 rejection")
	}
}

func TestPipelineStatus(t *testing.T) {
	q, runs := newTestQueue(t, &stubFetcher{}, 1, 4)
	h := NewPipelineHandler(q, runs, 50)
	runs.Start("tsla_20250812_143022", "TSLA")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/pipeline-status/tsla_20250812_143022", nil)
	c.Params = gin.Params{{Key: "name", Value: "tsla_20250812_143022"}}
	h.PipelineStatus(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var run domain.PipelineRun
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.Name != "tsla_20250812_143022" || run.Status != domain.RunStatusStarting {
		t.Errorf("run = %+v", run)
	}
}

func TestPipelineStatusUnknown(t *testing.T) {
	q, runs := newTestQueue(t, &stubFetcher{}, 1, 4)
	h := NewPipelineHandler(q, runs, 50)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/pipeline-status/nope", nil)
	c.Params = gin.Params{{Key: "name", Value: "nope"}}
	h.PipelineStatus(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestQueryHandler(t *testing.T) {
	catalog := &stubCatalog{datasets: []domain.Dataset{
		{Name: "aapl_20250812_143022", Symbol: "AAPL"},
	}}
	svc := service.NewQueryService(catalog, &stubEmbedder{dim: 4},
		&stubIndex{payloads: []domain.PostPayload{{Title: "AAPL earnings beat", Source: "Reddit"}}},
		&stubAnswer{answer: "Sentiment is positive."})
	h := NewQueryHandler(svc, 5)

	w := performJSON(h.Query, http.MethodPost, "/query",
		`{"stock_symbol": "aapl", "question": "Is AAPL a buy?"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var result service.QueryResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Answer != "Sentiment is positive." {
		t.Errorf("answer = %q", result.Answer)
	}
	if result.Collection != "aapl_20250812_143022" {
		t.Errorf("collection = %q", result.Collection)
	}
}

func TestQueryHandlerUnknownSymbol(t *testing.T) {
	svc := service.NewQueryService(&stubCatalog{}, &stubEmbedder{dim: 4}, &stubIndex{}, &stubAnswer{})
	h := NewQueryHandler(svc, 5)

	w := performJSON(h.Query, http.MethodPost, "/query",
		`{"stock_symbol": "NOPE", "question": "anything?"}`)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body = %s", w.Code, w.Body.String())
	}
}

func TestQueryHandlerNoRelevantPosts(t *testing.T) {
	catalog := &stubCatalog{datasets: []domain.Dataset{
		{Name: "aapl_20250812_143022", Symbol: "AAPL"},
	}}
	svc := service.NewQueryService(catalog, &stubEmbedder{dim: 4}, &stubIndex{}, &stubAnswer{answer: "made up"})
	h := NewQueryHandler(svc, 5)

	w := performJSON(h.Query, http.MethodPost, "/query",
		`{"stock_symbol": "AAPL", "question": "Is AAPL a buy?"}`)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "No relevant posts") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestQueryHandlerValidation(t *testing.T) {
	svc := service.NewQueryService(&stubCatalog{}, &stubEmbedder{dim: 4}, &stubIndex{}, &stubAnswer{})
	h := NewQueryHandler(svc, 5)

	for _, body := range []string{`{}`, `{"stock_symbol": "AAPL"}`, `{"question": "hm?"}`} {
		w := performJSON(h.Query, http.MethodPost, "/query", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, w.Code)
		}
	}
}

func TestListCollections(t *testing.T) {
	catalog := &stubCatalog{datasets: []domain.Dataset{
		{Name: "aapl_20250812_143022", Symbol: "AAPL", RecordCount: 40},
		{Name: "tsla_20250812_150000", Symbol: "TSLA", RecordCount: 25},
	}}
	h := NewCollectionsHandler(catalog, &stubRemover{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/collections", nil)
	h.ListCollections(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Collections []domain.Dataset `json:"collections"`
		Total       int              `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 || len(resp.Collections) != 2 {
		t.Errorf("total = %d, collections = %d", resp.Total, len(resp.Collections))
	}
}

func TestDeleteCollection(t *testing.T) {
	remover := &stubRemover{}
	h := NewCollectionsHandler(&stubCatalog{}, remover)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodDelete, "/collections/tsla_20250812_143022", nil)
	c.Params = gin.Params{{Key: "name", Value: "tsla_20250812_143022"}}
	h.DeleteCollection(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(remover.deleted) != 1 || remover.deleted[0] != "tsla_20250812_143022" {
		t.Errorf("deleted = %v", remover.deleted)
	}
}

func TestDeleteCollectionUnknown(t *testing.T) {
	h := NewCollectionsHandler(&stubCatalog{}, &stubRemover{err: domain.ErrNotFound})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodDelete, "/collections/nope", nil)
	c.Params = gin.Params{{Key: "name", Value: "nope"}}
	h.DeleteCollection(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestListRuns(t *testing.T) {
	q, runs := newTestQueue(t, &stubFetcher{}, 1, 4)
	h := NewPipelineHandler(q, runs, 50)
	runs.Start("aapl_20250812_143022", "AAPL")
	runs.Start("tsla_20250812_150000", "TSLA")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/pipeline-status", nil)
	h.ListRuns(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Runs  []string `json:"runs"`
		Total int      `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 || len(resp.Runs) != 2 {
		t.Errorf("total = %d, runs = %v", resp.Total, resp.Runs)
	}
}

func TestListModels(t *testing.T) {
	h := NewModelsHandler("all-MiniLM-L6-v2")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/models", nil)
	h.ListModels(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Models []struct {
			Name   string `json:"name"`
			Active bool   `json:"active"`
		} `json:"models"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	activeCount := 0
	for _, m := range resp.Models {
		if m.Active {
			activeCount++
			if m.Name != "all-MiniLM-L6-v2" {
				t.Errorf("active model = %q", m.Name)
			}
		}
	}
	if activeCount != 1 {
		t.Errorf("active models = %d, want 1", activeCount)
	}
}
