package service

import (
	"sort"
	"testing"

	"github.com/mweber/stocklens/internal/domain"
)

func TestLookupModel(t *testing.T) {
	tests := []struct {
		name         string
		model        string
		wantName     string
		wantDim      int
		wantProvider string
		wantErr      bool
	}{
		{name: "default on empty", model: "", wantName: "all-MiniLM-L6-v2", wantDim: 384, wantProvider: ProviderLocal},
		{name: "local model", model: "all-MiniLM-L6-v2", wantName: "all-MiniLM-L6-v2", wantDim: 384, wantProvider: ProviderLocal},
		{name: "openai small", model: "text-embedding-3-small", wantName: "text-embedding-3-small", wantDim: 1536, wantProvider: ProviderOpenAI},
		{name: "openai large", model: "text-embedding-3-large", wantName: "text-embedding-3-large", wantDim: 3072, wantProvider: ProviderOpenAI},
		{name: "jina", model: "jina-embeddings-v3", wantName: "jina-embeddings-v3", wantDim: 1024, wantProvider: ProviderJina},
		{name: "unknown", model: "word2vec", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := LookupModel(tt.model)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("LookupModel(%q): expected error", tt.model)
				}
				return
			}
			if err != nil {
				t.Fatalf("LookupModel(%q): %v", tt.model, err)
			}
			if info.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", info.Name, tt.wantName)
			}
			if info.Dimensions != tt.wantDim {
				t.Errorf("Dimensions = %d, want %d", info.Dimensions, tt.wantDim)
			}
			if info.Provider != tt.wantProvider {
				t.Errorf("Provider = %q, want %q", info.Provider, tt.wantProvider)
			}
		})
	}
}

func TestModelsSorted(t *testing.T) {
	models := Models()
	if len(models) == 0 {
		t.Fatal("no models registered")
	}

	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.Name
		if m.Dimensions <= 0 {
			t.Errorf("model %s has dimension %d", m.Name, m.Dimensions)
		}
	}
	if !sort.StringsAreSorted(names) {
		t.Errorf("models not sorted: %v", names)
	}
}

func TestNewEmbeddingServiceUnknownModel(t *testing.T) {
	_, err := NewEmbeddingService(&EmbeddingServiceConfig{Model: "word2vec"})
	if err == nil {
		t.Fatal("expected error for unknown model")
	}
}

func TestBuildPostText(t *testing.T) {
	tests := []struct {
		title, body, want string
	}{
		{"AAPL earnings", "beat estimates", "AAPL earnings beat estimates"},
		{"Title only", "", "Title only"},
		{"", "body only", "body only"},
		{"", "", ""},
	}

	for _, tt := range tests {
		p := domain.Post{Title: tt.title, Body: tt.body}
		if got := buildPostText(&p); got != tt.want {
			t.Errorf("buildPostText(%q, %q) = %q, want %q", tt.title, tt.body, got, tt.want)
		}
	}
}
