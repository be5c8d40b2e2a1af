package domain

import "time"

// RunStatus represents the coarse state of an ingestion run.
type RunStatus string

const (
	RunStatusStarting   RunStatus = "starting"
	RunStatusCollecting RunStatus = "collecting_data"
	RunStatusEmbedding  RunStatus = "processing_embeddings"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// PipelineRun is the ephemeral status record for one ingestion run, keyed
// by dataset/collection name. It lives only in memory and is lost on
// process restart.
type PipelineRun struct {
	Name      string    `json:"collection_name"`
	Symbol    string    `json:"stock_symbol"`
	Status    RunStatus `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
