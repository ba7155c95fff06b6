// Package models contains shared data models used across the news analyzer codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Job tracks an analyzer run submitted against a news preview. The API returns the job id
// on POST /v1/analyzer/{previewId}; clients page through jobs via POST /v1/job.
type Job struct {
	ID           int32          `db:"id"            json:"id"`
	Owner        uuid.UUID      `db:"owner"         json:"owner"`
	Fingerprint  string         `db:"fingerprint"   json:"fingerprint"`
	Status       Status         `db:"status"        json:"status"`
	Source       Source         `db:"source"        json:"source"`
	Analyzer     AnalyzerConfig `db:"analyzer"      json:"analyzer"`
	ErrorMessage *string        `db:"error_message" json:"error_message,omitempty"`
	StartedAt    *time.Time     `db:"started_at"    json:"started_at,omitempty"`
	CompletedAt  *time.Time     `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time      `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"    json:"updated_at"`
}

// Source describes the news feed preview a job analyzes.
type Source struct {
	APIID     int16    `json:"api_id"`
	APIName   string   `json:"api_name"`
	Query     string   `json:"query"`
	PreviewID string   `json:"preview_id"`
	Items     []string `json:"items,omitempty"` // selected preview item ids, sorted
}

// AnalyzerConfig is the analysis requested for a job: which LLM provider to call and
// which capabilities to run.
type AnalyzerConfig struct {
	Provider   string           `json:"provider"`
	ProviderID int16            `json:"provider_id"`
	Embedding  EmbeddingOptions `json:"embedding"`
	Sentiment  SentimentOptions `json:"sentiment"`
}

type EmbeddingOptions struct {
	Enabled   bool   `json:"enabled"`
	Model     string `json:"model,omitempty"`
	InputType string `json:"input_type,omitempty"`
}

type SentimentOptions struct {
	Enabled   bool   `json:"enabled"`
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	Truncate  string `json:"truncate,omitempty"`
}

// Capabilities lists the enabled capabilities in a fixed order.
func (c AnalyzerConfig) Capabilities() []string {
	caps := make([]string, 0, 2)
	if c.Embedding.Enabled {
		caps = append(caps, "embedding")
	}
	if c.Sentiment.Enabled {
		caps = append(caps, "sentiment")
	}
	return caps
}
