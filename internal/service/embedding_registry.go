package service

import (
	"fmt"
	"sort"
)

// Embedding providers. "local" models are served by an OpenAI-compatible
// inference endpoint running next to the service (e.g. a
// text-embeddings-inference container); the hosted providers are remote.
const (
	ProviderLocal  = "local"
	ProviderOpenAI = "openai"
	ProviderJina   = "jina"
)

// ModelInfo describes one entry of the fixed embedding model registry.
type ModelInfo struct {
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	Dimensions  int    `json:"dim"`
	Cost        string `json:"cost"`
	Description string `json:"description"`
}

// DefaultEmbeddingModel is the registry entry used when no model is
// configured.
const DefaultEmbeddingModel = "all-MiniLM-L6-v2"

// embeddingModels is the fixed registry of supported embedding models.
// Exactly one model is active per process; collections created with one
// model cannot be queried with another.
var embeddingModels = map[string]ModelInfo{
	"all-MiniLM-L6-v2": {
		Name:        "all-MiniLM-L6-v2",
		Provider:    ProviderLocal,
		Dimensions:  384,
		Cost:        "free (local)",
		Description: "Compact, fast transformer for semantic similarity. Good default for local RAG setups.",
	},
	"multi-qa-MiniLM-L6-cos-v1": {
		Name:        "multi-qa-MiniLM-L6-cos-v1",
		Provider:    ProviderLocal,
		Dimensions:  384,
		Cost:        "free (local)",
		Description: "Tuned for question-answering scenarios with better context matching.",
	},
	"e5-base": {
		Name:        "e5-base",
		Provider:    ProviderLocal,
		Dimensions:  768,
		Cost:        "free (local)",
		Description: "Strong retrieval performance, also usable multilingual.",
	},
	"text-embedding-3-small": {
		Name:        "text-embedding-3-small",
		Provider:    ProviderOpenAI,
		Dimensions:  1536,
		Cost:        "$0.00002 / 1k tokens",
		Description: "Fast, inexpensive OpenAI embedding model with good quality.",
	},
	"text-embedding-3-large": {
		Name:        "text-embedding-3-large",
		Provider:    ProviderOpenAI,
		Dimensions:  3072,
		Cost:        "$0.00013 / 1k tokens",
		Description: "High-quality OpenAI embedding model for maximum retrieval accuracy.",
	},
	"jina-embeddings-v3": {
		Name:        "jina-embeddings-v3",
		Provider:    ProviderJina,
		Dimensions:  1024,
		Cost:        "$0.00002 / 1k tokens",
		Description: "Jina embedding model with retrieval-specific task modes.",
	},
}

// LookupModel returns the registry entry for a model name.
func LookupModel(name string) (ModelInfo, error) {
	if name == "" {
		name = DefaultEmbeddingModel
	}
	info, ok := embeddingModels[name]
	if !ok {
		return ModelInfo{}, fmt.Errorf("unknown embedding model %q", name)
	}
	return info, nil
}

// Models returns all registry entries sorted by name.
func Models() []ModelInfo {
	models := make([]ModelInfo, 0, len(embeddingModels))
	for _, info := range embeddingModels {
		models = append(models, info)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models
}
